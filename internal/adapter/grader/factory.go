package grader

import (
	"fmt"

	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	openaiLLM "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderRemote = "remote"
)

// New builds the grader selected by cfg.Provider.
func New(cfg config.GradingConfig) (domain.AIGrader, error) {
	if cfg.Provider == ProviderRemote {
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("grading.remote_url is required for the remote provider")
		}
		return NewRemoteGrader(cfg.RemoteURL, cfg.Timeout), nil
	}

	var model llms.Model
	switch cfg.Provider {
	case ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.OllamaURL),
			ollama.WithModel(cfg.OllamaModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		model = llm
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("grading.openai_api_key is required for the openai provider")
		}
		llm, err := openaiLLM.New(
			openaiLLM.WithToken(cfg.OpenAIAPIKey),
			openaiLLM.WithModel(cfg.OpenAIModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown grading provider %q", cfg.Provider)
	}

	// Speaking answers need Whisper, which is only reachable with an OpenAI key.
	var transcriber domain.Transcriber
	if cfg.OpenAIAPIKey != "" {
		t, err := NewWhisperTranscriber(cfg.OpenAIAPIKey, "", cfg.TranscriptionModel)
		if err != nil {
			return nil, err
		}
		transcriber = t
	} else {
		logger.Get().Warn("No OpenAI API key configured; speaking answers will not be graded",
			zap.String("provider", cfg.Provider))
	}

	return NewLLMGrader(model, transcriber, cfg.Timeout), nil
}
