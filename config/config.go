package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var logger = logging.New("config")

// Load reads the process configuration from .env, the optional config file
// at path and SECUN0C_* environment variables, in increasing precedence.
func Load(path string) (*model.Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg(".env file not found, relying on environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("SECUN0C")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database", "data/secun0c.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("raid_duration", 300*time.Second)
	v.SetDefault("audit_lookback", 15*time.Second)
	v.SetDefault("guard_webhooks", true)
	v.SetDefault("webhook_sweep", 30*time.Second)
	v.SetDefault("log_channel_id", "")
	if err := v.BindEnv("token", "SECUN0C_TOKEN", "DISCORD_TOKEN", "BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind token env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			logger.Warn().Str("path", path).Msg("config file not found, using defaults")
		}
	}

	token := v.GetString("token")
	if token == "" {
		return nil, errors.New("DISCORD_TOKEN environment variable not set")
	}

	cfg := &model.Config{
		BotToken:            token,
		DatabasePath:        v.GetString("database"),
		LogLevel:            v.GetString("log_level"),
		MetricsListen:       v.GetString("metrics_listen"),
		RaidDuration:        v.GetDuration("raid_duration"),
		AuditLookback:       v.GetDuration("audit_lookback"),
		GuardWebhooks:       v.GetBool("guard_webhooks"),
		WebhookSweep:        v.GetDuration("webhook_sweep"),
		DefaultLogChannelID: v.GetString("log_channel_id"),
		Thresholds:          make(map[model.SignalKind]model.Threshold),
	}
	if cfg.DefaultLogChannelID == "" {
		logger.Warn().Msg("log_channel_id not set, guild log channels are resolved by name")
	}

	for kind, raw := range v.GetStringMapString("thresholds") {
		th, err := model.ParseThreshold(raw)
		if err != nil {
			return nil, fmt.Errorf("thresholds.%s: %w", kind, err)
		}
		cfg.Thresholds[model.SignalKind(kind)] = th
	}

	return cfg, nil
}
