package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Seed      SeedConfig
	OpenAI    OpenAIConfig
	Llama     LlamaConfig
	Synthesis SynthesisConfig
	Provider  ProviderConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir       string
	VoiceCacheDir string
}

type SeedConfig struct {
	DataDir string
}

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ChatModel string
	STTModel  string
	TTSModel  string
	Voice     string
}

type LlamaConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// SynthesisConfig picks the provider used to turn lookup results into a
// short answer: "llama" or "openai".
type SynthesisConfig struct {
	Provider string
}

type ProviderConfig struct {
	Timeout string
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Seed: SeedConfig{
			DataDir: filepath.Join("data", "f1"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:   "https://api.openai.com/v1",
			ChatModel: "gpt-4",
			STTModel:  "whisper-1",
			TTSModel:  "gpt-4o-mini-tts",
			Voice:     "alloy",
		},
		Llama: LlamaConfig{
			BaseURL: "https://api.llama.com/v1",
			Model:   "Llama-4-Maverick-17B-128E-Instruct-FP8",
		},
		Synthesis: SynthesisConfig{
			Provider: "llama",
		},
		Provider: ProviderConfig{
			Timeout: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// VoiceCacheDir returns the configured audio cache directory, defaulting to
// voice-cache under the data directory.
func (c Config) VoiceCacheDir() string {
	if c.Storage.VoiceCacheDir != "" {
		return c.Storage.VoiceCacheDir
	}
	return filepath.Join(c.Storage.DataDir, "voice-cache")
}

// ProviderTimeout parses Provider.Timeout, falling back to 60s.
func (c Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Load reads configuration from the TOML config file, the secrets file and
// environment variables, and fails when a provider API key is missing.
//
// The config file lives at $XDG_CONFIG_HOME/f1voice/config.toml. Environment
// variables (F1VOICE_*) override file values. API keys may also be supplied
// through OPENAI_API_KEY and LLAMA_API_KEY.
func Load() (Config, error) {
	cfg, err := loadFromPath(configFilePath(), secretsFile{path: secretsFilePath()})
	if err != nil {
		return Config{}, err
	}
	if err := cfg.requireSecrets(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOffline is Load without the API key check, for commands that never
// reach a provider (seed, config show).
func LoadOffline() (Config, error) {
	return loadFromPath(configFilePath(), secretsFile{path: secretsFilePath()})
}

// secretSource abstracts the secrets file for testing.
type secretSource interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, secrets secretSource) (Config, error) {
	return loadWith(newFileBackend(path), secrets)
}

func loadWith(b ConfigBackend, secrets secretSource) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		service, account, _ := strings.Cut(s.key, ".")
		if v, err := secrets.Get(service, account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

func (c Config) requireSecrets() error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OpenAI API key (OPENAI_API_KEY or F1VOICE_OPENAI_API_KEY)")
	}
	if c.Llama.APIKey == "" {
		missing = append(missing, "Llama API key (LLAMA_API_KEY or F1VOICE_LLAMA_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s. Set it via environment variable or %s",
			strings.Join(missing, ", "), secretsFilePath())
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "f1voice-data"
		}
	}
	return filepath.Join(dir, "f1voice")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "f1voice", "config.toml")
}
