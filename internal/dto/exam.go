package dto

import (
	"encoding/json"
	"time"
)

// ImportExamRequest is one exam definition of an import payload.
// @Description Exam tree to import
type ImportExamRequest struct {
	Code                 string                 `json:"code" validate:"required,max=64"`
	Title                string                 `json:"title" validate:"required,max=255"`
	Description          string                 `json:"description"`
	ExamType             string                 `json:"examType" validate:"omitempty,exam_type"`
	ReadingVariant       string                 `json:"readingVariant" validate:"omitempty,oneof=ACADEMIC GENERAL"`
	TotalDurationSeconds *int                   `json:"totalDurationSeconds" validate:"omitempty,gte=0"`
	ThumbnailURL         string                 `json:"thumbnailUrl" validate:"omitempty,max=1024"`
	IsPublished          *bool                  `json:"isPublished"`
	Metadata             map[string]interface{} `json:"metadata"`
	Sections             []ImportSectionRequest `json:"sections" validate:"dive"`
}

type ImportSectionRequest struct {
	Title           string                      `json:"title" validate:"required,max=255"`
	SectionType     string                      `json:"sectionType" validate:"omitempty,section_type"`
	DisplayOrder    *int                        `json:"displayOrder" validate:"omitempty,gte=1"`
	DurationSeconds int                         `json:"durationSeconds" validate:"gte=0"`
	Instructions    string                      `json:"instructions"`
	AudioURL        string                      `json:"audioUrl" validate:"omitempty,max=1024"`
	Groups          []ImportSectionGroupRequest `json:"groups" validate:"dive"`
}

// ImportSectionGroupRequest may list questions directly; they then form a
// single question group.
type ImportSectionGroupRequest struct {
	GroupType      string                       `json:"groupType" validate:"max=64"`
	Title          string                       `json:"title"`
	Description    string                       `json:"description"`
	Content        string                       `json:"content"`
	ResourceURL    string                       `json:"resourceUrl" validate:"omitempty,max=1024"`
	DisplayOrder   *int                         `json:"displayOrder" validate:"omitempty,gte=1"`
	QuestionGroups []ImportQuestionGroupRequest `json:"questionGroups" validate:"dive"`
	Questions      []ImportQuestionRequest      `json:"questions" validate:"dive"`
}

type ImportQuestionGroupRequest struct {
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	Content      string                  `json:"content"`
	ResourceURL  string                  `json:"resourceUrl" validate:"omitempty,max=1024"`
	DisplayOrder *int                    `json:"displayOrder" validate:"omitempty,gte=1"`
	Questions    []ImportQuestionRequest `json:"questions" validate:"dive"`
}

type ImportQuestionRequest struct {
	QuestionType  string          `json:"questionType" validate:"required,question_type"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer interface{}     `json:"correctAnswer"`
	ScoreWeight   *float64        `json:"scoreWeight" validate:"omitempty,gt=0"`
	Explanation   string          `json:"explanation"`
	DisplayOrder  *int            `json:"displayOrder" validate:"omitempty,gte=1"`
}

// UpdateExamRequest patches an exam; absent fields are left unchanged.
type UpdateExamRequest struct {
	Code           *string                 `json:"code" validate:"omitempty,min=1,max=64"`
	Title          *string                 `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string                 `json:"description"`
	ExamType       *string                 `json:"examType" validate:"omitempty,exam_type"`
	ReadingVariant *string                 `json:"readingVariant" validate:"omitempty,oneof=ACADEMIC GENERAL"`
	ThumbnailURL   *string                 `json:"thumbnailUrl" validate:"omitempty,max=1024"`
	IsPublished    *bool                   `json:"isPublished"`
	Metadata       *map[string]interface{} `json:"metadata"`
}

// ExamListQuery holds the listing filters taken from the query string.
type ExamListQuery struct {
	ExamType    string
	IsPublished *bool
	Search      string
	Page        int
	Limit       int
}

type ExamSummaryResponse struct {
	ID                   int64     `json:"id"`
	Code                 string    `json:"code"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	ExamType             string    `json:"examType"`
	ReadingVariant       string    `json:"readingVariant"`
	TotalDurationSeconds int       `json:"totalDurationSeconds"`
	ThumbnailURL         string    `json:"thumbnailUrl,omitempty"`
	IsPublished          bool      `json:"isPublished"`
	CreatedAt            time.Time `json:"createdAt"`
}

type ExamListResponse struct {
	CurrentPage int                   `json:"currentPage"`
	TotalPages  int                   `json:"totalPages"`
	Total       int                   `json:"total"`
	Exams       []ExamSummaryResponse `json:"exams"`
}

type ExamDetailResponse struct {
	ExamSummaryResponse
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Sections []SectionResponse      `json:"sections"`
}

// SectionResponse is a section of an exam tree. UserStatus is set on the exam
// detail when the caller is known.
type SectionResponse struct {
	ID              int64                  `json:"id"`
	Title           string                 `json:"title"`
	SectionType     string                 `json:"sectionType"`
	DisplayOrder    int                    `json:"displayOrder"`
	DurationSeconds int                    `json:"durationSeconds"`
	Instructions    string                 `json:"instructions,omitempty"`
	AudioURL        string                 `json:"audioUrl,omitempty"`
	QuestionCount   int                    `json:"questionCount"`
	UserStatus      string                 `json:"userStatus,omitempty"`
	Groups          []SectionGroupResponse `json:"groups,omitempty"`
}

type SectionGroupResponse struct {
	ID             int64                   `json:"id"`
	GroupType      string                  `json:"groupType"`
	Title          string                  `json:"title,omitempty"`
	Description    string                  `json:"description,omitempty"`
	Content        string                  `json:"content,omitempty"`
	ResourceURL    string                  `json:"resourceUrl,omitempty"`
	DisplayOrder   int                     `json:"displayOrder"`
	QuestionGroups []QuestionGroupResponse `json:"questionGroups"`
}

type QuestionGroupResponse struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	Content      string             `json:"content,omitempty"`
	ResourceURL  string             `json:"resourceUrl,omitempty"`
	DisplayOrder int                `json:"displayOrder"`
	Questions    []QuestionResponse `json:"questions"`
}

// QuestionResponse carries the correct answer and explanation only in
// authoring contexts.
type QuestionResponse struct {
	ID            int64           `json:"id"`
	QuestionType  string          `json:"questionType"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options,omitempty"`
	DisplayOrder  int             `json:"displayOrder"`
	ScoreWeight   float64         `json:"scoreWeight"`
	CorrectAnswer interface{}     `json:"correctAnswer,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
}
