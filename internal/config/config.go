// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package config loads Galdcup configuration.
//
// Sources are layered with koanf, lowest priority first:
//
//  1. struct defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/galdcup/config.yaml)
//  3. mapped environment variables (see envTransformFunc)
//
// The result is validated before it is returned.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
	Store       StoreConfig       `koanf:"store"`
	Archive     ArchiveConfig     `koanf:"archive"`
	Rotation    RotationConfig    `koanf:"rotation"`
	Queue       QueueConfig       `koanf:"queue"`
	Broadcast   BroadcastConfig   `koanf:"broadcast"`
	AI          AIConfig          `koanf:"ai"`
	Chart       ChartConfig       `koanf:"chart"`
	ObjectStore ObjectStoreConfig `koanf:"objectstore"`
	Discord     DiscordConfig     `koanf:"discord"`
	Audit       AuditConfig       `koanf:"audit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// SecurityConfig configures operator authentication and request limits.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	// AdminUsername and AdminPasswordHash (bcrypt) define the operator login.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`
	// MasterUserID is the chat user id that holds the master role.
	MasterUserID      string        `koanf:"master_user_id"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	CasbinModelPath   string        `koanf:"casbin_model_path"`
	CasbinPolicyPath  string        `koanf:"casbin_policy_path"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the badger-backed live store.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// ArchiveConfig configures the DuckDB result archive. An empty path opens
// an in-memory database.
type ArchiveConfig struct {
	Path string `koanf:"path"`
}

// RotationConfig configures the rotation scheduler.
type RotationConfig struct {
	Enabled             bool          `koanf:"enabled"`
	CheckInterval       time.Duration `koanf:"check_interval"`
	Period              time.Duration `koanf:"period"`
	CollaboratorTimeout time.Duration `koanf:"collaborator_timeout"`
	ChartTimeout        time.Duration `koanf:"chart_timeout"`
}

// QueueConfig configures the suggestion and queue manager.
type QueueConfig struct {
	OnePendingPerUser bool `koanf:"one_pending_per_user"`
	MaxChargeCount    int  `koanf:"max_charge_count"`
}

// BroadcastConfig configures destination fan-out.
type BroadcastConfig struct {
	Parallelism  int           `koanf:"parallelism"`
	MaxRetries   int           `koanf:"max_retries"`
	BaseDelay    time.Duration `koanf:"base_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	RatePerSec   float64       `koanf:"rate_per_second"`
	RateBurst    int           `koanf:"rate_burst"`
	NotifyOwners bool          `koanf:"notify_owners"`
}

// AIConfig configures the Gemini collaborator.
type AIConfig struct {
	Enabled     bool          `koanf:"enabled"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	PromptsPath string        `koanf:"prompts_path"`
	MaxOpinions int           `koanf:"max_opinions"`
}

// ChartConfig configures PNG chart rendering.
type ChartConfig struct {
	Enabled bool `koanf:"enabled"`
	Width   int  `koanf:"width"`
	Height  int  `koanf:"height"`
}

// ObjectStoreConfig configures optional S3-compatible chart uploads.
type ObjectStoreConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Region     string `koanf:"region"`
	Bucket     string `koanf:"bucket"`
	AccessKey  string `koanf:"access_key"`
	SecretKey  string `koanf:"secret_key"`
	Endpoint   string `koanf:"endpoint"`
	PublicBase string `koanf:"public_base"`
	Prefix     string `koanf:"prefix"`
}

// DiscordConfig configures the Discord messaging surface.
type DiscordConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Token          string `koanf:"token"`
	WelcomeEnabled bool   `koanf:"welcome_enabled"`
}

// AuditConfig configures the operator audit trail.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	RetentionDays int  `koanf:"retention_days"`
	BufferSize    int  `koanf:"buffer_size"`
	LogToStdout   bool `koanf:"log_to_stdout"`
}

// Load reads configuration from all sources.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
