package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration. Credentials can be overridden
// through environment variables so secrets stay out of the file.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		Backend    string `yaml:"backend"` // "local" or "supabase"
		LocalDir   string `yaml:"local_dir"`
		ScratchDir string `yaml:"scratch_dir"`
		Database   string `yaml:"database"`
		Supabase   struct {
			URL        string `yaml:"url"`
			Bucket     string `yaml:"bucket"`
			ServiceKey string `yaml:"service_key"`
		} `yaml:"supabase"`
	} `yaml:"storage"`

	OpenAI struct {
		APIKey          string `yaml:"api_key"`
		BaseURL         string `yaml:"base_url"`
		TranscribeModel string `yaml:"transcribe_model"`
		ChatModel       string `yaml:"chat_model"`
	} `yaml:"openai"`

	Poller struct {
		IntervalSeconds     int `yaml:"interval_seconds"` // 0 disables the resident loop
		ClaimTTLMinutes     int `yaml:"claim_ttl_minutes"`
		MaxAttempts         int `yaml:"max_attempts"`
		StageTimeoutMinutes int `yaml:"stage_timeout_minutes"`
	} `yaml:"poller"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Prompts map[string]string `yaml:"prompts"` // optional per-kind overrides
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Storage.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Storage.Supabase.ServiceKey = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data/blobs"
	}
	if c.Storage.ScratchDir == "" {
		c.Storage.ScratchDir = "temp"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "data/pipeline.db"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "whisper-1"
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 200
	}
}
