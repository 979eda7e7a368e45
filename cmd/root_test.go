package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/levelcord/levelcord/levelcord"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestInitConfigRunsTwice(t *testing.T) {
	// cobra re-runs initConfig for every Execute in the same process.
	// The first run replaces the log-level keys with *slog.LevelVar
	// values; the rerun must leave them alone instead of stringifying
	// and re-parsing them (which fatals on "LevelVar(INFO)").
	initConfig()
	initConfig()

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		_, ok := viper.Get(key).(*slog.LevelVar)
		require.Truef(
			t, ok,
			"expected %s to remain a *slog.LevelVar, got %T",
			key, viper.Get(key),
		)
	}

	// a fresh environment value still wins over the previous run's
	// converted value
	t.Setenv("LC_API_LOG_LEVEL", "ERROR")
	initConfig()
	assertLogLevel(t, slog.LevelError, viper.Get("api.log_level"))
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Save the original environment
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	// Clear the environment before the test
	os.Clearenv()

	tmpdir := t.TempDir()

	// Set up the test environment file
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General/database config

LC_DATABASE=/home/foo/levelcord.sqlite3
LC_DATABASE_TYPE=sqlite
LC_DATABASE_LOG_LEVEL=INFO
LC_DATABASE_SLOW_THRESHOLD=200ms
LC_LOG_LEVEL=INFO
LC_STARTUP_TIMEOUT=30s
LC_SHUTDOWN_TIMEOUT=60s

# XP config

LC_XP_TEXT_XP=5
LC_XP_VOICE_XP=10
LC_XP_VOICE_TICK_INTERVAL=1m
LC_XP_BACKUP_DIR=/var/backups/levelcord

# Discord bot config

LC_DISCORD_TOKEN=your-discord-bot-token
LC_DISCORD_APPLICATION_ID=your-discord-bot-app-id
LC_DISCORD_GUILD_ID=
LC_DISCORD_LOG_LEVEL=WARN
LC_DISCORD_DISCORDGO_LOG_LEVEL=WARN
LC_DISCORD_STARTUP_MESSAGE="I'm here!"
LC_DISCORD_GATEWAY_INTENTS=643
LC_DISCORD_ANNOUNCE_INTERVAL=1s
LC_DISCORD_ANNOUNCE_BURST=5

# API server

LC_API_ENABLED=true
LC_API_LISTEN=127.0.0.1:5000
LC_API_LOG_LEVEL=DEBUG
LC_API_CORS_ALLOW_ORIGINS=https://127.0.0.1:5000 https://localhost:5000
LC_API_CORS_ALLOW_METHODS=GET OPTIONS HEAD
LC_API_CORS_ALLOW_HEADERS=Origin Content-Length Content-Type Accept X-Request-ID
LC_API_CORS_EXPOSE_HEADERS=Content-Type Content-Length X-Request-ID
LC_API_CORS_ALLOW_CREDENTIALS=false
LC_API_CORS_MAX_AGE=12h
LC_API_READ_TIMEOUT=5s
LC_API_READ_HEADER_TIMEOUT=5s
LC_API_WRITE_TIMEOUT=10s
LC_API_IDLE_TIMEOUT=30s
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	assert.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "/home/foo/levelcord.sqlite3", cfg.Database)
	assert.Equal(t, "/home/foo/levelcord.sqlite3", viper.GetString("database"))
	assert.Equal(t, "sqlite", viper.GetString("database_type"))

	assertLogLevel(t, slog.LevelInfo, viper.Get("database_log_level"))

	assert.Equal(t, 200*time.Millisecond, viper.GetDuration("database_slow_threshold"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("log_level"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 60*time.Second, viper.GetDuration("shutdown_timeout"))

	assert.Equal(t, int64(5), viper.GetInt64("xp.text_xp"))
	assert.Equal(t, int64(10), viper.GetInt64("xp.voice_xp"))
	assert.Equal(t, time.Minute, viper.GetDuration("xp.voice_tick_interval"))
	assert.Equal(t, "/var/backups/levelcord", viper.GetString("xp.backup_dir"))

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(t, "your-discord-bot-app-id", viper.GetString("discord.application_id"))
	assert.Equal(t, "", viper.GetString("discord.guild_id"))

	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))

	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.discordgo_log_level"))
	assert.Equal(t, "I'm here!", viper.GetString("discord.startup_message"))
	assert.Equal(t, 643, viper.GetInt("discord.gateway_intents"))
	assert.Equal(t, time.Second, viper.GetDuration("discord.announce_interval"))
	assert.Equal(t, 5, viper.GetInt("discord.announce_burst"))

	assert.True(t, viper.GetBool("api.enabled"))
	assert.Equal(t, "127.0.0.1:5000", viper.GetString("api.listen"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5000", "https://localhost:5000"},
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	assert.Equal(
		t,
		[]string{"GET", "OPTIONS", "HEAD"},
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	assert.Equal(
		t,
		[]string{"GET", "OPTIONS", "HEAD"},
		cfg.API.CORS.AllowMethods,
	)
	assert.Equal(
		t,
		[]string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"Accept",
			"X-Request-ID",
		},
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	assert.Equal(
		t,
		[]string{"Content-Type", "Content-Length", "X-Request-ID"},
		viper.GetStringSlice("api.cors.expose_headers"),
	)
	assert.False(t, viper.GetBool("api.cors.allow_credentials"))
	assert.Equal(t, 12*time.Hour, viper.GetDuration("api.cors.max_age"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_timeout"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_header_timeout"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.write_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.idle_timeout"))

	// Unmarshal the configuration into a levelcord.Config struct
	var config levelcord.Config
	err = viper.Unmarshal(
		&config, viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	assert.NoError(t, err)

	// Verify some key fields in the Config struct
	assert.Equal(t, "/home/foo/levelcord.sqlite3", config.Database)
	assert.Equal(t, "sqlite", config.DatabaseType)
	assert.Equal(t, slog.LevelInfo, config.DatabaseLogLevel.Level())
	assert.Equal(t, 200*time.Millisecond, config.DatabaseSlowThreshold)
	assert.Equal(t, slog.LevelInfo, config.LogLevel.Level())
	assert.Equal(t, 30*time.Second, config.StartupTimeout)
	assert.Equal(t, 60*time.Second, config.ShutdownTimeout)

	assert.Equal(t, int64(5), config.XP.TextXP)
	assert.Equal(t, int64(10), config.XP.VoiceXP)
	assert.Equal(t, time.Minute, config.XP.VoiceTickInterval)
	assert.Equal(t, "/var/backups/levelcord", config.XP.BackupDir)

	assert.Equal(t, "your-discord-bot-token", config.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", config.Discord.ApplicationID)
	assert.Equal(t, "", config.Discord.GuildID)
	assert.Equal(t, slog.LevelWarn, config.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, config.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, "I'm here!", config.Discord.StartupMessage)
	assert.Equal(t, discordgo.Intent(643), config.Discord.GatewayIntents)
	assert.Equal(t, time.Second, config.Discord.AnnounceInterval)
	assert.Equal(t, 5, config.Discord.AnnounceBurst)

	assert.True(t, config.API.Enabled)
	assert.Equal(t, "127.0.0.1:5000", config.API.Listen)
	assert.Equal(t, slog.LevelDebug, config.API.LogLevel.Level())
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5000", "https://localhost:5000"},
		config.API.CORS.AllowOrigins,
	)
	assert.Equal(
		t,
		[]string{"GET", "OPTIONS", "HEAD"},
		config.API.CORS.AllowMethods,
	)
	assert.Equal(
		t,
		[]string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"Accept",
			"X-Request-ID",
		},
		config.API.CORS.AllowHeaders,
	)
}
