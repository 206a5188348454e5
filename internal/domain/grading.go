package domain

import (
	"context"
	"time"
)

// GradingResult is returned by the AI grading collaborator.
type GradingResult struct {
	Score            float64 `json:"score"`
	Feedback         string  `json:"feedback"`
	CorrectedVersion string  `json:"corrected_version"`
	Transcript       string  `json:"transcript,omitempty"`
}

// AIGrader grades open-ended answers. Implementations enforce their own timeout.
type AIGrader interface {
	GradeWriting(ctx context.Context, prompt, submittedText string) (*GradingResult, error)
	GradeSpeaking(ctx context.Context, prompt, audioURL string) (*GradingResult, error)
}

// Transcriber turns a spoken answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// GradingJob asks the coordinator to grade the open-ended answers of one submission.
type GradingJob struct {
	ID          string    `json:"id"`
	AttemptID   int64     `json:"attemptId"`
	SectionID   int64     `json:"sectionId"`
	QuestionIDs []int64   `json:"questionIds"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// GradingQueue hands jobs to the grading worker.
type GradingQueue interface {
	Enqueue(ctx context.Context, job GradingJob) error
}

// GradingReport summarizes what one job did.
type GradingReport struct {
	JobID      string `json:"jobId"`
	AttemptID  int64  `json:"attemptId"`
	Graded     int    `json:"graded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Stale      int    `json:"stale"`
	Recomputed bool   `json:"recomputed"`
}
