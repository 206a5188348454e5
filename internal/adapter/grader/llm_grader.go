package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

const (
	gradingTemperature = 0.3
	maxBandScore       = 9.0
	defaultTimeout     = 60 * time.Second
)

const writingPrompt = `You are an IELTS/TOEIC examiner. Grade the following WRITING answer and respond with ONLY a JSON object in this format:
{
    "score": 0.0,
    "feedback": "feedback here",
    "corrected_version": "improved answer here"
}

Question: %s
Student Answer: %s

Rules:
1. score is a band between 0 and 9, half points allowed
2. feedback explains the score in terms of grammar, vocabulary and coherence
3. corrected_version is a corrected or improved version of the answer`

const speakingPrompt = `You are an IELTS/TOEIC examiner. Grade the following SPEAKING answer from its transcript and respond with ONLY a JSON object in this format:
{
    "score": 0.0,
    "feedback": "feedback here",
    "corrected_version": "better way to express the ideas"
}

Question: %s
Student Transcript: %s

Rules:
1. score is a band between 0 and 9, half points allowed
2. feedback covers fluency, grammar, vocabulary and coherence
3. corrected_version shows a better way to express the same ideas`

// LLMGrader grades open-ended answers with a chat model.
type LLMGrader struct {
	model       llms.Model
	transcriber domain.Transcriber
	timeout     time.Duration
}

var _ domain.AIGrader = (*LLMGrader)(nil)

// NewLLMGrader wraps model. transcriber may be nil, in which case speaking
// answers cannot be graded.
func NewLLMGrader(model llms.Model, transcriber domain.Transcriber, timeout time.Duration) *LLMGrader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LLMGrader{model: model, transcriber: transcriber, timeout: timeout}
}

func (g *LLMGrader) GradeWriting(ctx context.Context, prompt, submittedText string) (*domain.GradingResult, error) {
	result, err := g.grade(ctx, fmt.Sprintf(writingPrompt, prompt, submittedText))
	if err != nil {
		return nil, domain.NewGradingServiceError(err)
	}
	return result, nil
}

// GradeSpeaking transcribes the recording first and grades the transcript.
func (g *LLMGrader) GradeSpeaking(ctx context.Context, prompt, audioURL string) (*domain.GradingResult, error) {
	if g.transcriber == nil {
		return nil, domain.NewGradingServiceError(errors.New("no transcriber configured"))
	}
	transcribeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	transcript, err := g.transcriber.Transcribe(transcribeCtx, audioURL)
	if err != nil {
		return nil, domain.NewGradingServiceError(fmt.Errorf("transcription failed: %w", err))
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, domain.NewGradingServiceError(errors.New("transcript is empty"))
	}

	result, err := g.grade(ctx, fmt.Sprintf(speakingPrompt, prompt, transcript))
	if err != nil {
		return nil, domain.NewGradingServiceError(err)
	}
	result.Transcript = transcript
	return result, nil
}

func (g *LLMGrader) grade(ctx context.Context, prompt string) (*domain.GradingResult, error) {
	l := logger.Get()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithTemperature(gradingTemperature))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			l.Error("LLM grading request timed out", zap.Duration("timeout", g.timeout))
			return nil, fmt.Errorf("LLM request timed out: %w", err)
		}
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	l.Debug("Raw LLM grading response received", zap.String("raw_response", raw))

	return parseGradingResponse(raw)
}

// parseGradingResponse drops any <think> block and decodes the first JSON object
// found in the response.
func parseGradingResponse(raw string) (*domain.GradingResult, error) {
	cleaned := strings.TrimSpace(raw)
	if thinkStart := strings.Index(cleaned, "<think>"); thinkStart != -1 {
		if thinkEnd := strings.Index(cleaned, "</think>"); thinkEnd > thinkStart {
			cleaned = strings.TrimSpace(cleaned[:thinkStart] + cleaned[thinkEnd+len("</think>"):])
		}
	}

	jsonStart := strings.Index(cleaned, "{")
	jsonEnd := strings.LastIndex(cleaned, "}")
	if jsonStart == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON object found in LLM response: %s", cleaned)
	}

	var result domain.GradingResult
	if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON from LLM: %w", err)
	}
	result.Score = clampScore(result.Score)
	return &result, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxBandScore {
		return maxBandScore
	}
	return score
}
