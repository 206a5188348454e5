package models

import (
	"database/sql"
	"time"

	"exam-engine/internal/domain"
)

// The JSON columns reuse the domain shapes; encoding/json writes int64 map keys as strings.
type ExamAttempt struct {
	ID              int64                                      `db:"ID"`
	UserID          string                                     `db:"USER_ID"`
	ExamID          int64                                      `db:"EXAM_ID"`
	Mode            string                                     `db:"ATTEMPT_MODE"`
	Status          string                                     `db:"STATUS"`
	TargetSectionID sql.NullInt64                              `db:"TARGET_SECTION_ID"`
	SectionProgress JSONText[map[int64]domain.SectionProgress] `db:"SECTION_PROGRESS"`
	ScoreSummary    JSONText[domain.ScoreSummary]              `db:"SCORE_SUMMARY"`
	TotalScore      sql.NullFloat64                            `db:"TOTAL_SCORE"`
	StartedAt       time.Time                                  `db:"STARTED_AT"`
	SubmittedAt     sql.NullTime                               `db:"SUBMITTED_AT"`
	Version         int64                                      `db:"VERSION"`
	CreatedAt       time.Time                                  `db:"CREATED_AT"`
	UpdatedAt       time.Time                                  `db:"UPDATED_AT"`
}

// ExamAttemptListing is an attempt row joined with the exam headline columns.
type ExamAttemptListing struct {
	ExamAttempt
	ExamCode  string `db:"EXAM_CODE"`
	ExamTitle string `db:"EXAM_TITLE"`
	ExamType  string `db:"EXAM_TYPE"`
}

type ExamAttemptAnswer struct {
	ID         int64                       `db:"ID"`
	AttemptID  int64                       `db:"ATTEMPT_ID"`
	SectionID  int64                       `db:"SECTION_ID"`
	QuestionID int64                       `db:"QUESTION_ID"`
	Answer     JSONText[interface{}]       `db:"ANSWER"`
	IsCorrect  sql.NullInt64               `db:"IS_CORRECT"` // NUMBER(1)
	Score      sql.NullFloat64             `db:"SCORE"`
	AIFeedback JSONText[domain.AIFeedback] `db:"AI_FEEDBACK"`
	AnsweredAt time.Time                   `db:"ANSWERED_AT"`
	UpdatedAt  time.Time                   `db:"UPDATED_AT"`
}
