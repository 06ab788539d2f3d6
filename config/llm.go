package config

import (
	"time"

	"github.com/planlab/evalplan-api/internal/domain/model"
)

// LLMConfig contains model provider configuration for the completion client.
type LLMConfig struct {
	// Endpoint is the chat completions URL of the model provider.
	Endpoint string `env:"LLM_ENDPOINT" envDefault:"https://api.openai.com/v1/chat/completions"`

	// APIKey authenticates requests to the model provider.
	APIKey string `env:"LLM_API_KEY"`

	// AttemptTimeout bounds a single round trip to the provider.
	AttemptTimeout time.Duration `env:"LLM_ATTEMPT_TIMEOUT" envDefault:"5m"`

	// MaxAttempts is the total number of tries per job, including the first.
	MaxAttempts int `env:"LLM_MAX_ATTEMPTS" envDefault:"3"`

	// BackoffBase is the delay before the first retry; it doubles per retry.
	BackoffBase time.Duration `env:"LLM_BACKOFF_BASE" envDefault:"2s"`

	// TruncationFloor is the minimum acceptable response length in characters.
	// Shorter responses are treated as truncated and retried.
	TruncationFloor int `env:"LLM_TRUNCATION_FLOOR" envDefault:"500"`

	// DefaultModel is used for job types without an explicit model override.
	DefaultModel string `env:"LLM_DEFAULT_MODEL" envDefault:"gpt-4o"`

	// Per-job-type model overrides.
	EvaluationPlanModel  string `env:"LLM_MODEL_EVALUATION_PLAN"`
	LogicModelModel      string `env:"LLM_MODEL_LOGIC_MODEL"`
	MeasurementPlanModel string `env:"LLM_MODEL_MEASUREMENT_PLAN"`

	// MaxTokens is the completion token ceiling sent with every request.
	MaxTokens int `env:"LLM_MAX_TOKENS" envDefault:"8192"`

	// Temperature is the sampling temperature sent with every request.
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.2"`
}

// Sanitize applies guardrails to model provider configuration values.
func (l *LLMConfig) Sanitize() {
	if l.AttemptTimeout <= 0 {
		l.AttemptTimeout = 5 * time.Minute
	}
	if l.MaxAttempts < 1 {
		l.MaxAttempts = 1
	}
	if l.BackoffBase <= 0 {
		l.BackoffBase = 2 * time.Second
	}
	if l.TruncationFloor < 0 {
		l.TruncationFloor = 0
	}
	if l.MaxTokens < 1 {
		l.MaxTokens = 1
	}
	if l.Temperature < 0 {
		l.Temperature = 0
	}
}

// ModelFor returns the model name to use for the given job type, falling back
// to DefaultModel when no override is configured.
func (l *LLMConfig) ModelFor(jobType model.JobType) string {
	switch jobType {
	case model.JobTypeEvaluationPlan:
		if l.EvaluationPlanModel != "" {
			return l.EvaluationPlanModel
		}
	case model.JobTypeLogicModel:
		if l.LogicModelModel != "" {
			return l.LogicModelModel
		}
	case model.JobTypeMeasurementPlan:
		if l.MeasurementPlanModel != "" {
			return l.MeasurementPlanModel
		}
	}
	return l.DefaultModel
}
