package grader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"github.com/gofiber/fiber/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultTranscriptionTimeout = 60 * time.Second

// WhisperTranscriber downloads a recording and transcribes it with the OpenAI
// audio API. Both steps share one deadline.
type WhisperTranscriber struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ domain.Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a transcriber. baseURL overrides the API endpoint
// when not empty.
func NewWhisperTranscriber(apiKey, baseURL, model string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key cannot be empty")
	}
	if model == "" {
		model = openai.Whisper1
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperTranscriber{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: defaultTranscriptionTimeout,
	}, nil
}

// remainingTimeout caps limit by the deadline of ctx, if it has one.
func remainingTimeout(ctx context.Context, limit time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			return remaining
		}
	}
	return limit
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	parsed, err := url.Parse(audioURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid audio url: %q", audioURL)
	}

	audio, err := t.download(ctx, audioURL)
	if err != nil {
		return "", err
	}

	// The API infers the format from the file name.
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = "answer.mp3"
	}

	out, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: name,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		logger.Get().Error("Whisper transcription failed", zap.String("audioURL", audioURL), zap.Error(err))
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return out.Text, nil
}

func (t *WhisperTranscriber) download(ctx context.Context, audioURL string) ([]byte, error) {
	timeout := remainingTimeout(ctx, t.timeout)
	if timeout <= 0 {
		return nil, fmt.Errorf("failed to download audio: %w", context.DeadlineExceeded)
	}

	agent := fiber.Get(audioURL)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("invalid audio url: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to download audio: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("failed to download audio: status %d", code)
	}
	return body, nil
}
