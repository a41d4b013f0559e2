package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const defaultConfigFileName = "aigateway.toml"

type UpstreamConfig struct {
	BaseURL        string `toml:"base_url,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	AssistantID    string `toml:"assistant_id,omitempty"`
	ChatModel      string `toml:"chat_model,omitempty"`
	ImageModel     string `toml:"image_model,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"`
	Email      string `toml:"email"`
	CacheDir   string `toml:"cache_dir"`
}

type GatewayConfig struct {
	ListenAddr string         `toml:"listen_addr"`
	LogLevel   string         `toml:"log_level"`
	Upstream   UpstreamConfig `toml:"upstream"`
	TLS        TLSConfig      `toml:"tls"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "aigateway", defaultConfigFileName)
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "aigateway", "tls-autocert")
}

func NewDefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		ListenAddr: "127.0.0.1:8080",
		LogLevel:   "info",
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o",
			ImageModel:     "dall-e-3",
			TimeoutSeconds: 120,
		},
		TLS: TLSConfig{
			Enabled:    false,
			ListenAddr: ":443",
			CacheDir:   DefaultTLSCacheDir(),
		},
	}
}

func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	cfg := NewDefaultGatewayConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrCreateGatewayConfig(path string) (*GatewayConfig, error) {
	cfg := NewDefaultGatewayConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOrCreate(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, v); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write config temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Normalize trims fields and applies environment fallbacks for upstream
// credentials so the config file never has to hold secrets.
func (c *GatewayConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8080"
	}
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Upstream.Normalize()
	c.TLS.ListenAddr = strings.TrimSpace(c.TLS.ListenAddr)
	if c.TLS.ListenAddr == "" {
		c.TLS.ListenAddr = ":443"
	}
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
}

func (u *UpstreamConfig) Normalize() {
	u.BaseURL = strings.TrimRight(strings.TrimSpace(u.BaseURL), "/")
	if u.BaseURL == "" {
		u.BaseURL = "https://api.openai.com/v1"
	}
	u.APIKey = strings.TrimSpace(u.APIKey)
	if u.APIKey == "" {
		u.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	u.AssistantID = strings.TrimSpace(u.AssistantID)
	if u.AssistantID == "" {
		u.AssistantID = strings.TrimSpace(os.Getenv("OPENAI_ASSISTANT_ID"))
	}
	u.ChatModel = strings.TrimSpace(u.ChatModel)
	if u.ChatModel == "" {
		u.ChatModel = "gpt-4o"
	}
	u.ImageModel = strings.TrimSpace(u.ImageModel)
	if u.ImageModel == "" {
		u.ImageModel = "dall-e-3"
	}
	if u.TimeoutSeconds <= 0 {
		u.TimeoutSeconds = 120
	}
}

func (c *GatewayConfig) Validate() error {
	if _, err := url.Parse(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("invalid upstream base_url %q: %w", c.Upstream.BaseURL, err)
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream api_key is required (set in config or OPENAI_API_KEY)")
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return fmt.Errorf("tls.domain is required when tls is enabled")
	}
	return nil
}
