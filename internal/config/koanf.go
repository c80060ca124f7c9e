// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/galdcup/config.yaml",
	"/etc/galdcup/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8470,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			AdminUsername:   "admin",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path: "/data/galdcup/store",
		},
		Archive: ArchiveConfig{
			Path: "/data/galdcup/archive.duckdb",
		},
		Rotation: RotationConfig{
			Enabled:             true,
			CheckInterval:       time.Minute,
			Period:              72 * time.Hour,
			CollaboratorTimeout: 30 * time.Second,
			ChartTimeout:        10 * time.Second,
		},
		Queue: QueueConfig{
			OnePendingPerUser: true,
			MaxChargeCount:    5,
		},
		Broadcast: BroadcastConfig{
			Parallelism:  5,
			MaxRetries:   3,
			BaseDelay:    time.Second,
			MaxDelay:     30 * time.Second,
			RatePerSec:   5,
			RateBurst:    5,
			NotifyOwners: true,
		},
		AI: AIConfig{
			Enabled:     false,
			Model:       "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Timeout:     30 * time.Second,
			MaxOpinions: 500,
		},
		Chart: ChartConfig{
			Enabled: true,
			Width:   800,
			Height:  400,
		},
		ObjectStore: ObjectStoreConfig{
			Prefix: "charts",
		},
		Discord: DiscordConfig{
			WelcomeEnabled: true,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
			BufferSize:    1000,
		},
	}
}

// LoadWithKoanf layers defaults, the optional config file and environment
// variables, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"admin_username":      "security.admin_username",
	"admin_password_hash": "security.admin_password_hash",
	"master_user_id":      "security.master_user_id",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"casbin_model_path":   "security.casbin_model_path",
	"casbin_policy_path":  "security.casbin_policy_path",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_sync_writes": "store.sync_writes",
	"duckdb_path":       "archive.path",

	"rotation_enabled":              "rotation.enabled",
	"rotation_check_interval":       "rotation.check_interval",
	"rotation_period":               "rotation.period",
	"rotation_collaborator_timeout": "rotation.collaborator_timeout",
	"rotation_chart_timeout":        "rotation.chart_timeout",

	"queue_one_pending_per_user": "queue.one_pending_per_user",
	"queue_max_charge_count":     "queue.max_charge_count",

	"broadcast_parallelism":   "broadcast.parallelism",
	"broadcast_max_retries":   "broadcast.max_retries",
	"broadcast_base_delay":    "broadcast.base_delay",
	"broadcast_max_delay":     "broadcast.max_delay",
	"broadcast_rate":          "broadcast.rate_per_second",
	"broadcast_burst":         "broadcast.rate_burst",
	"broadcast_notify_owners": "broadcast.notify_owners",

	"ai_enabled":      "ai.enabled",
	"gemini_api_key":  "ai.api_key",
	"gemini_model":    "ai.model",
	"gemini_base_url": "ai.base_url",
	"ai_timeout":      "ai.timeout",
	"ai_prompts_path": "ai.prompts_path",
	"ai_max_opinions": "ai.max_opinions",

	"chart_enabled": "chart.enabled",
	"chart_width":   "chart.width",
	"chart_height":  "chart.height",

	"s3_enabled":     "objectstore.enabled",
	"s3_region":      "objectstore.region",
	"s3_bucket":      "objectstore.bucket",
	"s3_access_key":  "objectstore.access_key",
	"s3_secret_key":  "objectstore.secret_key",
	"s3_endpoint":    "objectstore.endpoint",
	"s3_public_base": "objectstore.public_base",
	"s3_prefix":      "objectstore.prefix",

	"discord_enabled":         "discord.enabled",
	"discord_token":           "discord.token",
	"discord_welcome_enabled": "discord.welcome_enabled",

	"audit_enabled":        "audit.enabled",
	"audit_retention_days": "audit.retention_days",
	"audit_buffer_size":    "audit.buffer_size",
	"audit_log_to_stdout":  "audit.log_to_stdout",
}

// envTransformFunc maps environment variable names to koanf paths:
//
//	LOG_LEVEL       -> logging.level
//	ROTATION_PERIOD -> rotation.period
//	GEMINI_API_KEY  -> ai.api_key
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
