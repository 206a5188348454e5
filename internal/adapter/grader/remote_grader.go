package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"exam-engine/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// RemoteGrader calls the external AI grading service.
type RemoteGrader struct {
	baseURL string
	timeout time.Duration
}

var _ domain.AIGrader = (*RemoteGrader)(nil)

func NewRemoteGrader(baseURL string, timeout time.Duration) *RemoteGrader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RemoteGrader{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

func (g *RemoteGrader) GradeWriting(ctx context.Context, prompt, submittedText string) (*domain.GradingResult, error) {
	return g.post(ctx, "/score/writing", fiber.Map{"question": prompt, "answer": submittedText})
}

func (g *RemoteGrader) GradeSpeaking(ctx context.Context, prompt, audioURL string) (*domain.GradingResult, error) {
	return g.post(ctx, "/score/speaking", fiber.Map{"question": prompt, "audio_url": audioURL})
}

func (g *RemoteGrader) post(ctx context.Context, endpoint string, body fiber.Map) (*domain.GradingResult, error) {
	timeout := remainingTimeout(ctx, g.timeout)
	if timeout <= 0 {
		return nil, domain.NewGradingServiceError(context.DeadlineExceeded)
	}

	agent := fiber.Post(g.baseURL + endpoint)
	agent.JSON(body)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return nil, domain.NewGradingServiceError(fmt.Errorf("failed to build request: %w", err))
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, domain.NewGradingServiceError(errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, domain.NewGradingServiceError(fmt.Errorf("grading service returned status %d: %s", code, respBody))
	}

	var result domain.GradingResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewGradingServiceError(fmt.Errorf("invalid grading response: %w", err))
	}
	result.Score = clampScore(result.Score)
	return &result, nil
}
