package dto

import (
	"encoding/json"
	"time"

	"exam-engine/internal/domain"
)

// StartAttemptRequest starts or resumes an attempt. Mode defaults to SECTION.
type StartAttemptRequest struct {
	Mode       string `json:"mode" validate:"omitempty,attempt_mode"`
	SectionID  *int64 `json:"sectionId" validate:"omitempty,gt=0"`
	ResumeLast bool   `json:"resumeLast"`
}

type SubmittedAnswer struct {
	QuestionID int64       `json:"questionId" validate:"required,gt=0"`
	Answer     interface{} `json:"answer"`
}

type SubmitSectionRequest struct {
	Answers []SubmittedAnswer `json:"answers" validate:"dive"`
}

type AttemptResponse struct {
	ID              int64                            `json:"id"`
	UserID          string                           `json:"userId"`
	ExamID          int64                            `json:"examId"`
	Mode            string                           `json:"mode"`
	Status          string                           `json:"status"`
	TargetSectionID *int64                           `json:"targetSectionId,omitempty"`
	SectionProgress map[int64]domain.SectionProgress `json:"sectionProgress"`
	ScoreSummary    *domain.ScoreSummary             `json:"scoreSummary,omitempty"`
	StartedAt       time.Time                        `json:"startedAt"`
	SubmittedAt     *time.Time                       `json:"submittedAt,omitempty"`
}

type SectionSubmissionResponse struct {
	SectionID      int64     `json:"sectionId"`
	SectionType    string    `json:"sectionType"`
	Status         string    `json:"status"`
	AnsweredCount  int       `json:"answeredCount"`
	CorrectCount   int       `json:"correctCount"`
	TotalQuestions int       `json:"totalQuestions"`
	EarnedScore    float64   `json:"earnedScore"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

type FinalizeAttemptResponse struct {
	AttemptID    int64                `json:"attemptId"`
	ExamID       int64                `json:"examId"`
	Status       string               `json:"status"`
	SubmittedAt  time.Time            `json:"submittedAt"`
	ScoreSummary *domain.ScoreSummary `json:"scoreSummary"`
}

type ExamHeadline struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Title    string `json:"title"`
	ExamType string `json:"examType"`
}

type AttemptListItem struct {
	ID           int64                `json:"id"`
	UserID       string               `json:"userId,omitempty"`
	Exam         ExamHeadline         `json:"exam"`
	Mode         string               `json:"mode"`
	Status       string               `json:"status"`
	StartedAt    time.Time            `json:"startedAt"`
	SubmittedAt  *time.Time           `json:"submittedAt,omitempty"`
	TotalScore   *float64             `json:"totalScore,omitempty"`
	ScoreSummary *domain.ScoreSummary `json:"scoreSummary,omitempty"`
}

type AttemptListResponse struct {
	CurrentPage int               `json:"currentPage"`
	TotalPages  int               `json:"totalPages"`
	Total       int               `json:"total"`
	Attempts    []AttemptListItem `json:"attempts"`
}

// AttemptListQuery is the admin attempt filter.
type AttemptListQuery struct {
	UserID    string
	ExamID    *int64
	Status    string
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	MinScore  *float64
	MaxScore  *float64
	Page      int
	Limit     int
}

type AttemptDetailResponse struct {
	Attempt      AttemptResponse        `json:"attempt"`
	Exam         ExamHeadline           `json:"exam"`
	ScoreSummary *domain.ScoreSummary   `json:"scoreSummary,omitempty"`
	Sections     []AttemptSectionReview `json:"sections"`
}

type AttemptSectionReview struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	SectionType string               `json:"sectionType"`
	Groups      []AttemptGroupReview `json:"groups"`
}

type AttemptGroupReview struct {
	ID             int64                        `json:"id"`
	Title          string                       `json:"title,omitempty"`
	GroupType      string                       `json:"groupType"`
	QuestionGroups []AttemptQuestionGroupReview `json:"questionGroups"`
}

type AttemptQuestionGroupReview struct {
	ID        int64                   `json:"id"`
	Title     string                  `json:"title,omitempty"`
	Content   string                  `json:"content,omitempty"`
	Questions []AttemptQuestionReview `json:"questions"`
}

type AttemptQuestionReview struct {
	QuestionID    int64              `json:"questionId"`
	Prompt        string             `json:"prompt"`
	QuestionType  string             `json:"questionType"`
	Options       json.RawMessage    `json:"options,omitempty"`
	CorrectAnswer interface{}        `json:"correctAnswer,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	UserAnswer    interface{}        `json:"userAnswer"`
	IsCorrect     *bool              `json:"isCorrect"`
	Score         *float64           `json:"score"`
	AIFeedback    *domain.AIFeedback `json:"aiFeedback,omitempty"`
}
