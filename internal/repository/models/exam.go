package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"exam-engine/internal/domain"
)

type Exam struct {
	ID                   int64                     `db:"ID"`
	Code                 string                    `db:"CODE"`
	Title                string                    `db:"TITLE"`
	Description          sql.NullString            `db:"DESCRIPTION"`
	ExamType             string                    `db:"EXAM_TYPE"`
	ReadingVariant       string                    `db:"READING_VARIANT"`
	TotalDurationSeconds int                       `db:"TOTAL_DURATION_SECONDS"`
	ThumbnailURL         sql.NullString            `db:"THUMBNAIL_URL"`
	IsPublished          int                       `db:"IS_PUBLISHED"` // NUMBER(1)
	Metadata             JSONText[domain.Metadata] `db:"METADATA"`
	CreatedAt            time.Time                 `db:"CREATED_AT"`
	UpdatedAt            time.Time                 `db:"UPDATED_AT"`
}

type ExamSection struct {
	ID              int64          `db:"ID"`
	ExamID          int64          `db:"EXAM_ID"`
	Title           string         `db:"TITLE"`
	SectionType     string         `db:"SECTION_TYPE"`
	DisplayOrder    int            `db:"DISPLAY_ORDER"`
	DurationSeconds int            `db:"DURATION_SECONDS"`
	Instructions    sql.NullString `db:"INSTRUCTIONS"`
	AudioURL        sql.NullString `db:"AUDIO_URL"`
}

type ExamSectionGroup struct {
	ID           int64          `db:"ID"`
	SectionID    int64          `db:"SECTION_ID"`
	GroupType    string         `db:"GROUP_TYPE"`
	Title        sql.NullString `db:"TITLE"`
	Description  sql.NullString `db:"DESCRIPTION"`
	Content      sql.NullString `db:"CONTENT"`
	ResourceURL  sql.NullString `db:"RESOURCE_URL"`
	DisplayOrder int            `db:"DISPLAY_ORDER"`
}

type ExamQuestionGroup struct {
	ID             int64          `db:"ID"`
	SectionGroupID int64          `db:"SECTION_GROUP_ID"`
	Title          sql.NullString `db:"TITLE"`
	Description    sql.NullString `db:"DESCRIPTION"`
	Content        sql.NullString `db:"CONTENT"`
	ResourceURL    sql.NullString `db:"RESOURCE_URL"`
	DisplayOrder   int            `db:"DISPLAY_ORDER"`
}

type ExamQuestion struct {
	ID              int64                     `db:"ID"`
	QuestionGroupID int64                     `db:"QUESTION_GROUP_ID"`
	QuestionType    string                    `db:"QUESTION_TYPE"`
	Prompt          sql.NullString            `db:"PROMPT"`
	Options         JSONText[json.RawMessage] `db:"OPTIONS"`
	IsObjective     int                       `db:"IS_OBJECTIVE"` // NUMBER(1)
	CorrectAnswer   JSONText[interface{}]     `db:"CORRECT_ANSWER"`
	ScoreWeight     float64                   `db:"SCORE_WEIGHT"`
	Explanation     sql.NullString            `db:"EXPLANATION"`
	DisplayOrder    int                       `db:"DISPLAY_ORDER"`
}
