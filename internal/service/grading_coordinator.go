package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/logger"
	"exam-engine/internal/scoring"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GradingCoordinator grades open-ended answers after a section submission
// and keeps the score summary of finalized attempts in line with the results.
type GradingCoordinator struct {
	attempts      domain.AttemptRepository
	answers       domain.AnswerRepository
	trees         ExamTreeReader
	txManager     domain.TransactionManager
	grader        domain.AIGrader
	concurrency   int
	passThreshold float64
	retry         conflictRetry
	observer      func(domain.GradingReport)
}

type CoordinatorOption func(*GradingCoordinator)

// WithConcurrency caps the answers graded at the same time for one job.
func WithConcurrency(n int) CoordinatorOption {
	return func(c *GradingCoordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPassThreshold sets the score at or above which an answer counts as correct.
func WithPassThreshold(threshold float64) CoordinatorOption {
	return func(c *GradingCoordinator) {
		if threshold > 0 {
			c.passThreshold = threshold
		}
	}
}

// WithObserver registers a callback that receives every report.
func WithObserver(fn func(domain.GradingReport)) CoordinatorOption {
	return func(c *GradingCoordinator) {
		c.observer = fn
	}
}

func NewGradingCoordinator(
	attempts domain.AttemptRepository,
	answers domain.AnswerRepository,
	trees ExamTreeReader,
	txManager domain.TransactionManager,
	grader domain.AIGrader,
	opts ...CoordinatorOption,
) *GradingCoordinator {
	c := &GradingCoordinator{
		attempts:      attempts,
		answers:       answers,
		trees:         trees,
		txManager:     txManager,
		grader:        grader,
		concurrency:   config.DefaultGradingWorkers,
		passThreshold: config.DefaultPassThreshold,
		retry:         defaultConflictRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes jobs until ctx is done or messages is closed. Every message
// is acked, including the ones that fail; grading is never retried.
func (c *GradingCoordinator) Run(ctx context.Context, messages <-chan *message.Message) error {
	logger.Get().Info("Grading coordinator started")
	for {
		select {
		case <-ctx.Done():
			logger.Get().Info("Grading coordinator stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				logger.Get().Info("Grading subscription closed")
				return nil
			}
			c.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (c *GradingCoordinator) handle(ctx context.Context, msg *message.Message) {
	var job domain.GradingJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		logger.Get().Error("Dropping undecodable grading job",
			zap.String("messageID", msg.UUID),
			zap.Error(err))
		return
	}
	if _, err := c.Process(ctx, job); err != nil {
		logger.Get().Error("Grading job failed",
			zap.String("jobID", job.ID),
			zap.Int64("attemptID", job.AttemptID),
			zap.Error(err))
	}
}

type gradingTask struct {
	answer   *domain.AttemptAnswer
	question *domain.Question
}

// Process grades the answers named by job. Failures of single answers are
// counted in the report and never fail the job.
func (c *GradingCoordinator) Process(ctx context.Context, job domain.GradingJob) (*domain.GradingReport, error) {
	report := domain.GradingReport{JobID: job.ID, AttemptID: job.AttemptID}

	attempt, err := c.attempts.GetAttemptByID(ctx, job.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt == nil {
		return nil, domain.NewAttemptNotFoundError(job.AttemptID)
	}
	exam, err := c.trees.GetExamTree(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(attempt.ExamID)
	}
	answers, err := c.answers.ListAnswersByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	byQuestion := make(map[int64]*domain.AttemptAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	index := exam.QuestionIndex()

	var tasks []gradingTask
	for _, questionID := range job.QuestionIDs {
		located, ok := index[questionID]
		answer := byQuestion[questionID]
		if !ok || answer == nil || !located.Question.QuestionType.IsOpenEnded() || !answer.HasPayload() {
			report.Skipped++
			continue
		}
		tasks = append(tasks, gradingTask{answer: answer, question: located.Question})
	}

	outcomes := c.gradeAll(ctx, tasks)
	report.Failed = len(tasks) - len(outcomes)

	if len(outcomes) > 0 {
		var applied int
		err := c.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			n, err := c.answers.SaveGradingOutcomes(ctx, outcomes)
			if err != nil {
				return err
			}
			applied = n
			if n == 0 {
				return nil
			}
			return c.attempts.BumpVersion(ctx, attempt.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save grading results: %w", err)
		}
		report.Graded = applied
		report.Stale = len(outcomes) - applied
	}

	if report.Graded > 0 {
		recomputed, err := c.recompute(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to recompute score summary: %w", err)
		}
		report.Recomputed = recomputed
	}

	logger.Get().Info("Grading job processed",
		zap.String("jobID", job.ID),
		zap.Int64("attemptID", job.AttemptID),
		zap.Int("graded", report.Graded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("stale", report.Stale),
		zap.Bool("recomputed", report.Recomputed))
	if c.observer != nil {
		c.observer(report)
	}
	return &report, nil
}

// gradeAll calls the grader in parallel and returns the successful outcomes.
func (c *GradingCoordinator) gradeAll(ctx context.Context, tasks []gradingTask) []domain.GradingOutcome {
	var (
		mu       sync.Mutex
		outcomes []domain.GradingOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			result, err := c.grade(gctx, task)
			if err != nil {
				logger.Get().Warn("Failed to grade answer",
					zap.Int64("answerID", task.answer.ID),
					zap.Int64("questionID", task.question.ID),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			outcomes = append(outcomes, domain.GradingOutcome{
				AnswerID:        task.answer.ID,
				AnswerUpdatedAt: task.answer.UpdatedAt,
				Score:           result.Score,
				IsCorrect:       result.Score >= c.passThreshold,
				AIFeedback: domain.AIFeedback{
					Feedback:         result.Feedback,
					CorrectedVersion: result.CorrectedVersion,
					Transcript:       result.Transcript,
				},
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *GradingCoordinator) grade(ctx context.Context, task gradingTask) (*domain.GradingResult, error) {
	switch task.question.QuestionType {
	case domain.QuestionSpeakingPrompt:
		audioURL, ok := task.answer.Payload.(string)
		if !ok {
			return nil, fmt.Errorf("speaking answer is not an audio URL: %T", task.answer.Payload)
		}
		return c.grader.GradeSpeaking(ctx, task.question.Prompt, audioURL)
	default:
		return c.grader.GradeWriting(ctx, task.question.Prompt, payloadText(task.answer.Payload))
	}
}

func payloadText(payload interface{}) string {
	if s, ok := payload.(string); ok {
		return s
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(data)
}

// recompute rewrites the summary of a finalized attempt from its current
// answers. It reports false when the attempt is still in progress.
func (c *GradingCoordinator) recompute(ctx context.Context, attemptID int64) (bool, error) {
	recomputed := false
	err := c.retry.do(ctx, func(ctx context.Context) error {
		recomputed = false
		attempt, err := c.attempts.GetAttemptByID(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt == nil || !attempt.IsSubmitted() {
			return nil
		}
		exam, err := c.trees.GetExamTree(ctx, attempt.ExamID)
		if err != nil {
			return err
		}
		if exam == nil {
			return domain.NewExamNotFoundError(attempt.ExamID)
		}
		answers, err := c.answers.ListAnswersByAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		summary := scoring.BuildScoreSummary(exam, answers)
		if err := c.attempts.SaveScoreSummary(ctx, attemptID, summary, attempt.Version); err != nil {
			return err
		}
		recomputed = true
		return nil
	})
	return recomputed, err
}
