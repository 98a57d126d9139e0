package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key string
	typ keyType
	env string
	// altEnv is a conventional variable name consulted when env is unset.
	altEnv  string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "F1VOICE_SERVER_PORT", altEnv: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "F1VOICE_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "F1VOICE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.voice_cache_dir", typ: kString, env: "F1VOICE_STORAGE_VOICE_CACHE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.VoiceCacheDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.VoiceCacheDir },
	},
	{
		key: "seed.data_dir", typ: kString, env: "F1VOICE_SEED_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Seed.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Seed.DataDir },
	},
	{
		key: "openai.api_key", typ: kString, env: "F1VOICE_OPENAI_API_KEY", altEnv: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "F1VOICE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: "F1VOICE_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.stt_model", typ: kString, env: "F1VOICE_OPENAI_STT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.STTModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.STTModel },
	},
	{
		key: "openai.tts_model", typ: kString, env: "F1VOICE_OPENAI_TTS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.TTSModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.TTSModel },
	},
	{
		key: "openai.voice", typ: kString, env: "F1VOICE_OPENAI_VOICE",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Voice = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Voice },
	},
	{
		key: "llama.api_key", typ: kString, env: "F1VOICE_LLAMA_API_KEY", altEnv: "LLAMA_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Llama.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Llama.APIKey },
	},
	{
		key: "llama.base_url", typ: kString, env: "F1VOICE_LLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Llama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Llama.BaseURL },
	},
	{
		key: "llama.model", typ: kString, env: "F1VOICE_LLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Llama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Llama.Model },
	},
	{
		key: "synthesis.provider", typ: kString, env: "F1VOICE_SYNTHESIS_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Synthesis.Provider },
	},
	{
		key: "provider.timeout", typ: kString, env: "F1VOICE_PROVIDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Provider.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "F1VOICE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "F1VOICE_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func lookupEnv(s keySpec) (name, raw string) {
	if v := os.Getenv(s.env); v != "" {
		return s.env, v
	}
	if s.altEnv != "" {
		if v := os.Getenv(s.altEnv); v != "" {
			return s.altEnv, v
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
