package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/logger"
	"exam-engine/internal/util"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// GradingQueue publishes grading jobs as JSON messages.
type GradingQueue struct {
	publisher message.Publisher
	topic     string
}

var _ domain.GradingQueue = (*GradingQueue)(nil)

func NewGradingQueue(publisher message.Publisher, topic string) *GradingQueue {
	if topic == "" {
		topic = config.DefaultGradingTopic
	}
	return &GradingQueue{publisher: publisher, topic: topic}
}

// Enqueue assigns an id and enqueue time when the job has none.
func (q *GradingQueue) Enqueue(ctx context.Context, job domain.GradingJob) error {
	if job.ID == "" {
		job.ID = util.NewULID()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode grading job: %w", err)
	}
	msg := message.NewMessage(job.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("attemptId", fmt.Sprint(job.AttemptID))

	if err := q.publisher.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("failed to publish grading job %s: %w", job.ID, err)
	}
	logger.Get().Debug("Grading job enqueued",
		zap.String("jobID", job.ID),
		zap.Int64("attemptID", job.AttemptID),
		zap.Int64("sectionID", job.SectionID),
		zap.Int("questions", len(job.QuestionIDs)))
	return nil
}
