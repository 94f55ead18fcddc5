// Package config loads and validates evaluator configuration from the
// environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized configuration option.
type Config struct {
	EvaluatorHost  string
	EvaluatorPort  int
	ToolServerPort int

	Headless bool

	MaxToolCalls   int
	MaxSteps       int
	TimeoutSeconds int

	Benchmarks       []string
	TasksByBenchmark map[string][]string

	DatasetRoot              string
	TokenLimitPerObservation int

	LambdaC float64
	LambdaL float64

	SessionsPersistent bool
	SessionsDBPath     string

	LLMProvider  string
	LLMModel     string
	LLMMaxTokens int

	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// Error is a ConfigurationError: a bad or missing configuration value,
// surfaced at startup or on inbound message validation.
type Error struct {
	Option string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

// Default returns the configuration defaults. max_tool_calls defaults to 3 in
// the upstream source; that default is implausibly low for realistic tasks
// and is treated purely as a knob here, never as policy.
func Default() Config {
	return Config{
		EvaluatorHost:            "0.0.0.0",
		EvaluatorPort:            8000,
		ToolServerPort:           8001,
		Headless:                 false,
		MaxToolCalls:             3,
		MaxSteps:                 100,
		TimeoutSeconds:           300,
		Benchmarks:               []string{"miniwob", "assistantbench"},
		TasksByBenchmark:         map[string][]string{},
		DatasetRoot:              "",
		TokenLimitPerObservation: 2000,
		LambdaC:                  0.01,
		LambdaL:                  0.1,
		SessionsPersistent:       false,
		SessionsDBPath:           "",
		LLMProvider:              "anthropic",
		LLMModel:                 "claude-sonnet-4-5",
		LLMMaxTokens:             1024,
	}
}

// Load reads configuration from the environment (prefix A2AEVAL_) and an
// optional file at path, falling back to Default for anything unset.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("a2aeval")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Option: "config_file", Reason: err.Error()}
		}
	}

	setDefaults(v, cfg)

	cfg.EvaluatorHost = v.GetString("evaluator_host")
	cfg.EvaluatorPort = v.GetInt("evaluator_port")
	cfg.ToolServerPort = v.GetInt("tool_server_port")
	cfg.Headless = parseTruthy(v.GetString("headless"))
	cfg.MaxToolCalls = v.GetInt("max_tool_calls")
	cfg.MaxSteps = v.GetInt("max_steps")
	cfg.TimeoutSeconds = v.GetInt("timeout_seconds")
	if bs := v.GetStringSlice("benchmarks"); len(bs) > 0 {
		cfg.Benchmarks = bs
	}
	cfg.DatasetRoot = v.GetString("dataset_root")
	cfg.TokenLimitPerObservation = v.GetInt("token_limit_per_observation")
	cfg.LambdaC = v.GetFloat64("lambda_c")
	cfg.LambdaL = v.GetFloat64("lambda_l")
	cfg.SessionsPersistent = v.GetBool("sessions_persistent")
	cfg.SessionsDBPath = v.GetString("sessions_db_path")
	cfg.LLMProvider = v.GetString("llm_provider")
	cfg.LLMModel = v.GetString("llm_model")
	cfg.LLMMaxTokens = v.GetInt("llm_max_tokens")

	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = v.GetString("anthropic_api_key")
	cfg.OpenAIAPIKey = v.GetString("openai_api_key")

	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("evaluator_host", cfg.EvaluatorHost)
	v.SetDefault("evaluator_port", cfg.EvaluatorPort)
	v.SetDefault("tool_server_port", cfg.ToolServerPort)
	v.SetDefault("headless", "false")
	v.SetDefault("max_tool_calls", cfg.MaxToolCalls)
	v.SetDefault("max_steps", cfg.MaxSteps)
	v.SetDefault("timeout_seconds", cfg.TimeoutSeconds)
	v.SetDefault("benchmarks", cfg.Benchmarks)
	v.SetDefault("dataset_root", cfg.DatasetRoot)
	v.SetDefault("token_limit_per_observation", cfg.TokenLimitPerObservation)
	v.SetDefault("lambda_c", cfg.LambdaC)
	v.SetDefault("lambda_l", cfg.LambdaL)
	v.SetDefault("sessions_persistent", cfg.SessionsPersistent)
	v.SetDefault("sessions_db_path", cfg.SessionsDBPath)
	v.SetDefault("llm_provider", cfg.LLMProvider)
	v.SetDefault("llm_model", cfg.LLMModel)
	v.SetDefault("llm_max_tokens", cfg.LLMMaxTokens)
}

// parseTruthy matches the headless flag's documented truthy set, case
// insensitive: 1, true, yes, on.
func parseTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks invariants that must hold before the evaluator can start.
func (c Config) Validate() error {
	if c.EvaluatorPort <= 0 || c.EvaluatorPort > 65535 {
		return &Error{Option: "evaluator_port", Reason: "must be in (0, 65535]"}
	}
	if c.ToolServerPort <= 0 || c.ToolServerPort > 65535 {
		return &Error{Option: "tool_server_port", Reason: "must be in (0, 65535]"}
	}
	if c.EvaluatorPort == c.ToolServerPort {
		return &Error{Option: "tool_server_port", Reason: "must differ from evaluator_port"}
	}
	if c.MaxToolCalls < 1 {
		return &Error{Option: "max_tool_calls", Reason: "must be >= 1"}
	}
	if c.TimeoutSeconds < 1 {
		return &Error{Option: "timeout_seconds", Reason: "must be >= 1"}
	}
	if c.SessionsPersistent && c.SessionsDBPath == "" {
		return &Error{Option: "sessions_db_path", Reason: "required when sessions_persistent is set"}
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return &Error{Option: "llm_provider", Reason: "must be anthropic or openai"}
	}
	return nil
}

// Timeout converts TimeoutSeconds to a time.Duration for callers that need it.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
