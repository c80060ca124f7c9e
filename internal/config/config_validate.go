// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
		c.validateStore,
		c.validateRotation,
		c.validateQueue,
		c.validateBroadcast,
		c.validateAI,
		c.validateChart,
		c.validateObjectStore,
		c.validateDiscord,
		c.validateAudit,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is required and must be at least 32 characters")
	}
	if c.Security.AdminPasswordHash != "" && !strings.HasPrefix(c.Security.AdminPasswordHash, "$2") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateRotation() error {
	if c.Rotation.CheckInterval < time.Second {
		return fmt.Errorf("ROTATION_CHECK_INTERVAL must be at least 1s, got %v", c.Rotation.CheckInterval)
	}
	if c.Rotation.Period < c.Rotation.CheckInterval {
		return fmt.Errorf("ROTATION_PERIOD (%v) must not be shorter than ROTATION_CHECK_INTERVAL (%v)",
			c.Rotation.Period, c.Rotation.CheckInterval)
	}
	if c.Rotation.CollaboratorTimeout <= 0 {
		return fmt.Errorf("ROTATION_COLLABORATOR_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxChargeCount < 1 {
		return fmt.Errorf("QUEUE_MAX_CHARGE_COUNT must be at least 1")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.Parallelism < 1 {
		return fmt.Errorf("BROADCAST_PARALLELISM must be at least 1")
	}
	if c.Broadcast.MaxRetries < 0 {
		return fmt.Errorf("BROADCAST_MAX_RETRIES must not be negative")
	}
	if c.Broadcast.RatePerSec <= 0 {
		return fmt.Errorf("BROADCAST_RATE must be positive")
	}
	return nil
}

func (c *Config) validateAI() error {
	if !c.AI.Enabled {
		return nil
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_ENABLED=true")
	}
	if err := validateHTTPURL(c.AI.BaseURL); err != nil {
		return fmt.Errorf("GEMINI_BASE_URL is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateChart() error {
	if !c.Chart.Enabled {
		return nil
	}
	if c.Chart.Width < 200 || c.Chart.Height < 100 {
		return fmt.Errorf("chart size must be at least 200x100, got %dx%d", c.Chart.Width, c.Chart.Height)
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	if !c.ObjectStore.Enabled {
		return nil
	}
	if c.ObjectStore.Region == "" || c.ObjectStore.Bucket == "" {
		return fmt.Errorf("S3_REGION and S3_BUCKET are required when S3_ENABLED=true")
	}
	if c.ObjectStore.Endpoint != "" {
		if err := validateHTTPURL(c.ObjectStore.Endpoint); err != nil {
			return fmt.Errorf("S3_ENDPOINT is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) validateDiscord() error {
	if c.Discord.Enabled && c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required when DISCORD_ENABLED=true")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative, got %d", c.Audit.RetentionDays)
	}
	return nil
}
