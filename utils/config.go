package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Provider  string                    `json:"provider" toml:"provider"`
	Providers map[string]ProviderConfig `json:"providers" toml:"providers"`
	Chat      ChatConfig                `json:"chat" toml:"chat"`
	Voice     VoiceConfig               `json:"voice" toml:"voice"`
	Network   NetworkConfig             `json:"network" toml:"network"`
	Data      DataConfig                `json:"data" toml:"data"`
	Log       LogConfig                 `json:"log" toml:"log"`
}

// ProviderConfig represents chat-completion provider configuration
type ProviderConfig struct {
	APIKey             string       `json:"api_key" toml:"api_key"`
	BaseURL            string       `json:"base_url" toml:"base_url"`
	Models             ModelsConfig `json:"models" toml:"models"`
	TranscriptionModel string       `json:"transcription_model,omitempty" toml:"transcription_model,omitempty"`
	MaxTokens          int          `json:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
}

// ModelsConfig maps each prompt template to a model. Empty entries use the
// template's preferred model.
type ModelsConfig struct {
	Short    string `json:"short,omitempty" toml:"short,omitempty"`
	Long     string `json:"long,omitempty" toml:"long,omitempty"`
	Solution string `json:"solution,omitempty" toml:"solution,omitempty"`
}

// ChatConfig represents turn settings
type ChatConfig struct {
	Template       string `json:"template" toml:"template"`
	Streaming      bool   `json:"streaming" toml:"streaming"`
	ImageMaxTokens int    `json:"image_max_tokens" toml:"image_max_tokens"`
	Context        string `json:"context,omitempty" toml:"context,omitempty"`
	ContextFile    string `json:"context_file,omitempty" toml:"context_file,omitempty"`
}

// VoiceConfig represents voice input settings
type VoiceConfig struct {
	Enhance bool `json:"enhance" toml:"enhance"`
}

// NetworkConfig represents HTTP settings
type NetworkConfig struct {
	// Bounds a whole non-streaming request, and only the wait for response
	// headers when streaming
	TimeoutSeconds int `json:"timeout_seconds" toml:"timeout_seconds"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath     string `json:"db_path" toml:"db_path"`
	MaxHistory int    `json:"max_history" toml:"max_history"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `json:"level" toml:"level"`
	Dir   string `json:"dir" toml:"dir"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: "openai",
		Providers: map[string]ProviderConfig{
			"openai": {
				BaseURL: "https://api.openai.com/v1",
				Models: ModelsConfig{
					Short:    "gpt-3.5-turbo",
					Long:     "gpt-4-turbo",
					Solution: "gpt-4o-mini",
				},
				TranscriptionModel: "whisper-1",
			},
			"groq": {
				BaseURL: "https://api.groq.com/openai/v1",
				Models: ModelsConfig{
					Short:    "openai/gpt-oss-120b",
					Long:     "openai/gpt-oss-120b",
					Solution: "meta-llama/llama-4-scout-17b-16e-instruct",
				},
				TranscriptionModel: "whisper-large-v3-turbo",
			},
		},
		Chat: ChatConfig{
			Template:       "short",
			Streaming:      true,
			ImageMaxTokens: 1000,
		},
		Voice: VoiceConfig{
			Enhance: true,
		},
		Network: NetworkConfig{
			TimeoutSeconds: 120,
		},
		Data: DataConfig{
			DBPath:     filepath.Join(appDataDir(), "chat.db"),
			MaxHistory: 1000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   filepath.Join(appDataDir(), "logs"),
		},
	}
}

// LoadConfig loads configuration from a JSON or TOML file, chosen by
// extension. Values missing from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Expand paths
	config.Data.DBPath = expandPath(config.Data.DBPath)
	config.Log.Dir = expandPath(config.Log.Dir)
	config.Chat.ContextFile = expandPath(config.Chat.ContextFile)

	config.fillProviderDefaults()
	config.ApplyEnvOverrides()
	return config, nil
}

// fillProviderDefaults restores built-in values for known providers that a
// config file only partially specifies
func (c *Config) fillProviderDefaults() {
	defaults := DefaultConfig().Providers
	if c.Providers == nil {
		c.Providers = defaults
		return
	}
	for name, pc := range c.Providers {
		def, ok := defaults[name]
		if !ok {
			continue
		}
		if pc.BaseURL == "" {
			pc.BaseURL = def.BaseURL
		}
		if pc.Models.Short == "" {
			pc.Models.Short = def.Models.Short
		}
		if pc.Models.Long == "" {
			pc.Models.Long = def.Models.Long
		}
		if pc.Models.Solution == "" {
			pc.Models.Solution = def.Models.Solution
		}
		if pc.TranscriptionModel == "" {
			pc.TranscriptionModel = def.TranscriptionModel
		}
		c.Providers[name] = pc
	}
	for name, def := range defaults {
		if _, ok := c.Providers[name]; !ok {
			c.Providers[name] = def
		}
	}
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds API keys
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnvOverrides applies OVERLAY_PROVIDER, OPENAI_API_KEY and GROQ_API_KEY
func (c *Config) ApplyEnvOverrides() {
	if p := os.Getenv("OVERLAY_PROVIDER"); p != "" {
		c.Provider = p
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range map[string]string{"openai": "OPENAI_API_KEY", "groq": "GROQ_API_KEY"} {
		if key := os.Getenv(env); key != "" {
			pc := c.Providers[name]
			pc.APIKey = key
			c.Providers[name] = pc
		}
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	name := strings.ToLower(c.Provider)
	if name != "openai" && name != "groq" {
		return fmt.Errorf("unknown provider %q (expected openai or groq)", c.Provider)
	}
	if c.Network.TimeoutSeconds < 0 {
		return fmt.Errorf("network.timeout_seconds must not be negative")
	}
	if c.Chat.ImageMaxTokens < 0 {
		return fmt.Errorf("chat.image_max_tokens must not be negative")
	}
	if c.Data.MaxHistory < 0 {
		return fmt.Errorf("data.max_history must not be negative")
	}
	return nil
}

// ActiveProvider returns the name and settings of the selected provider
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	name := strings.ToLower(c.Provider)
	return name, c.Providers[name]
}

// Timeout returns the HTTP timeout; zero means none
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

// ResolveContext returns the background text for prompts. The context file
// takes precedence over the inline context.
func (c *Config) ResolveContext() (string, error) {
	if c.Chat.ContextFile == "" {
		return strings.TrimSpace(c.Chat.Context), nil
	}
	content, err := ReadFileContent(c.Chat.ContextFile)
	if err != nil {
		return "", fmt.Errorf("failed to load context file: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// Make absolute
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

func appDataDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(configDir, "overlay-llm-client")
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to current directory
		return "./config/config.json"
	}

	return filepath.Join(configDir, "overlay-llm-client", "config.json")
}

// EnsureDefaultConfig creates a default config file at configPath if it
// doesn't exist
func EnsureDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	return SaveConfig(configPath, DefaultConfig())
}
