package domain

import (
	"context"
	"time"
)

type AttemptMode string

const (
	AttemptModeFull    AttemptMode = "FULL"
	AttemptModeSection AttemptMode = "SECTION"
)

func (m AttemptMode) Valid() bool {
	return m == AttemptModeFull || m == AttemptModeSection
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
)

type SectionStatus string

const SectionCompleted SectionStatus = "COMPLETED"

// SectionProgress is the snapshot written when a section is submitted.
type SectionProgress struct {
	Status         SectionStatus `json:"status"`
	AnsweredCount  int           `json:"answeredCount"`
	CorrectCount   int           `json:"correctCount"`
	TotalQuestions int           `json:"totalQuestions"`
	EarnedScore    float64       `json:"earnedScore"`
	SubmittedAt    time.Time     `json:"submittedAt"`
}

type ExamAttempt struct {
	ID              int64                     `json:"id"`
	UserID          string                    `json:"userId"`
	ExamID          int64                     `json:"examId"`
	Mode            AttemptMode               `json:"mode"`
	Status          AttemptStatus             `json:"status"`
	TargetSectionID *int64                    `json:"targetSectionId,omitempty"`
	SectionProgress map[int64]SectionProgress `json:"sectionProgress"`
	ScoreSummary    *ScoreSummary             `json:"scoreSummary,omitempty"`
	TotalScore      *float64                  `json:"totalScore,omitempty"`
	StartedAt       time.Time                 `json:"startedAt"`
	SubmittedAt     *time.Time                `json:"submittedAt,omitempty"`
	Version         int64                     `json:"version"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

func (a *ExamAttempt) IsOwnedBy(userID string) bool {
	return a.UserID == userID
}

func (a *ExamAttempt) IsSubmitted() bool {
	return a.Status == AttemptSubmitted
}

// SectionCompleted reports whether the section has a COMPLETED snapshot.
func (a *ExamAttempt) SectionCompleted(sectionID int64) bool {
	p, ok := a.SectionProgress[sectionID]
	return ok && p.Status == SectionCompleted
}

// CopyProgress returns a copy of the progress map that callers may modify.
func (a *ExamAttempt) CopyProgress() map[int64]SectionProgress {
	out := make(map[int64]SectionProgress, len(a.SectionProgress)+1)
	for k, v := range a.SectionProgress {
		out[k] = v
	}
	return out
}

// AIFeedback is what the grading collaborator returned for an answer.
type AIFeedback struct {
	Feedback         string `json:"feedback"`
	CorrectedVersion string `json:"correctedVersion,omitempty"`
	Transcript       string `json:"transcript,omitempty"`
}

// AttemptAnswer is one row per (attempt, question).
type AttemptAnswer struct {
	ID         int64       `json:"id"`
	AttemptID  int64       `json:"attemptId"`
	SectionID  int64       `json:"sectionId"`
	QuestionID int64       `json:"questionId"`
	Payload    interface{} `json:"answer"`
	IsCorrect  *bool       `json:"isCorrect"`
	Score      *float64    `json:"score"`
	AIFeedback *AIFeedback `json:"aiFeedback,omitempty"`
	AnsweredAt time.Time   `json:"answeredAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// HasPayload reports whether the answer carries something worth grading.
func (a *AttemptAnswer) HasPayload() bool {
	switch v := a.Payload.(type) {
	case nil:
		return false
	case string:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	}
	return true
}

// GradingOutcome is the persisted result of AI grading for one answer.
// AnswerUpdatedAt is the answer version that was graded; the outcome is not
// applied when the answer changed since.
type GradingOutcome struct {
	AnswerID        int64
	AnswerUpdatedAt time.Time
	Score           float64
	IsCorrect       bool
	AIFeedback      AIFeedback
}

// AttemptFilter drives the admin attempt listing and export.
type AttemptFilter struct {
	UserID    string
	ExamID    *int64
	Status    *AttemptStatus
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	MinScore  *float64
	MaxScore  *float64
	Limit     int
	Offset    int
}

// AttemptListing is an attempt row joined with its exam headline.
type AttemptListing struct {
	Attempt   *ExamAttempt
	ExamCode  string
	ExamTitle string
	ExamType  ExamType
}

// AttemptRepository persists attempts. Every write that takes an expectedVersion
// succeeds only when the stored version still matches, bumps the version, and
// otherwise returns a CONCURRENT_UPDATE DomainError.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *ExamAttempt) error
	// GetAttemptByID returns nil when the attempt does not exist.
	GetAttemptByID(ctx context.Context, id int64) (*ExamAttempt, error)
	FindInProgressAttempt(ctx context.Context, userID string, examID int64, mode AttemptMode, targetSectionID *int64) (*ExamAttempt, error)
	ListAttemptsByUser(ctx context.Context, userID string, limit, offset int) ([]*AttemptListing, int, error)
	ListAttemptsByUserAndExam(ctx context.Context, userID string, examID int64) ([]*ExamAttempt, error)
	SearchAttempts(ctx context.Context, filter AttemptFilter) ([]*AttemptListing, int, error)
	SaveSectionProgress(ctx context.Context, attemptID int64, progress map[int64]SectionProgress, expectedVersion int64) error
	MarkSubmitted(ctx context.Context, attemptID int64, summary *ScoreSummary, submittedAt time.Time, expectedVersion int64) error
	SaveScoreSummary(ctx context.Context, attemptID int64, summary *ScoreSummary, expectedVersion int64) error
	// BumpVersion increments the version unconditionally.
	BumpVersion(ctx context.Context, attemptID int64) error
}

// AnswerRepository persists attempt answers.
type AnswerRepository interface {
	// UpsertAnswers replaces the rows keyed by (attempt, question) and fills in ids.
	UpsertAnswers(ctx context.Context, answers []*AttemptAnswer) error
	ListAnswersByAttempt(ctx context.Context, attemptID int64) ([]*AttemptAnswer, error)
	// SaveGradingOutcomes returns how many outcomes were applied.
	SaveGradingOutcomes(ctx context.Context, outcomes []GradingOutcome) (int, error)
}
