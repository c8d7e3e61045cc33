package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/leemai/leemai/internal/validation"
	"github.com/spf13/viper"
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	HuggingFace HuggingFaceConfig `mapstructure:"huggingface" yaml:"huggingface"`
	Answer      AnswerConfig      `mapstructure:"answer" yaml:"answer"`
	Generation  GenerationConfig  `mapstructure:"generation" yaml:"generation"`
	Candidates  []CandidateConfig `mapstructure:"candidates" yaml:"candidates" validate:"required,min=1,dive"`
}

type ServerConfig struct {
	Address       string `mapstructure:"address" yaml:"address" validate:"required"`
	AllowedOrigin string `mapstructure:"allowed_origin" yaml:"allowed_origin" validate:"required"`
}

type HuggingFaceConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	RouterURL string `mapstructure:"router_url" yaml:"router_url" validate:"required,url"`
	// Token is normally provided through HF_TOKEN. An empty token is allowed so
	// that the handler can answer with a configuration message instead of failing.
	Token string `mapstructure:"token" yaml:"token"`
}

type AnswerConfig struct {
	MaxLength int `mapstructure:"max_length" yaml:"max_length" validate:"gte=16"`
}

type GenerationConfig struct {
	MaxNewTokens int     `mapstructure:"max_new_tokens" yaml:"max_new_tokens" validate:"gt=0"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0"`
	TopP         float64 `mapstructure:"top_p" yaml:"top_p" validate:"gt=0,lte=1"`
}

// CandidateConfig is one upstream model in the fallback order.
type CandidateConfig struct {
	Name     string        `mapstructure:"name" yaml:"name"`
	Provider string        `mapstructure:"provider" yaml:"provider" validate:"required,oneof=huggingface openai"`
	Model    string        `mapstructure:"model" yaml:"model" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0,lte=2m"`
}

// DisplayName returns the name used in logs and metrics.
func (c CandidateConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Model
}

const DefaultCandidateTimeout = 25 * time.Second

func defaultCandidates() []map[string]any {
	models := []string{
		"mistralai/Mistral-7B-Instruct-v0.2",
		"HuggingFaceH4/zephyr-7b-beta",
		"google/flan-t5-large",
	}
	candidates := make([]map[string]any, 0, len(models))
	for _, model := range models {
		candidates = append(candidates, map[string]any{
			"provider": ProviderHuggingFace,
			"model":    model,
			"timeout":  DefaultCandidateTimeout.String(),
		})
	}
	return candidates
}

func Load(configFile string) (*Config, error) {
	// .env is a convenience for local runs. A missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/leemai")
	}

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("huggingface.base_url", "https://api-inference.huggingface.co")
	v.SetDefault("huggingface.router_url", "https://router.huggingface.co/v1")
	v.SetDefault("answer.max_length", 2000)
	v.SetDefault("generation.max_new_tokens", 400)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.top_p", 0.95)
	v.SetDefault("candidates", defaultCandidates())

	// Bind the provider credential to the environment variable used by Hugging Face tooling
	if err := v.BindEnv("huggingface.token", "HF_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind HF_TOKEN environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cfg.Validate() > %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration and reports every violation at once.
func (cfg *Config) Validate() error {
	v, err := validation.New()
	if err != nil {
		return fmt.Errorf("validation.New() > %w", err)
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasCredential reports whether an upstream credential is configured.
func (cfg *Config) HasCredential() bool {
	return strings.TrimSpace(cfg.HuggingFace.Token) != ""
}
