package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/levelcord/levelcord/levelcord"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = levelcord.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "levelcord [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings into *slog.LevelVar
// fields during config unmarshaling.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", levelcord.DefaultDatabase)
	viper.SetDefault("database_type", levelcord.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		levelcord.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		levelcord.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", levelcord.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", levelcord.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", levelcord.DefaultShutdownTimeout)

	// XP config
	viper.SetDefault("xp.text_xp", levelcord.DefaultTextXP)
	viper.SetDefault("xp.voice_xp", levelcord.DefaultVoiceXP)
	viper.SetDefault(
		"xp.voice_tick_interval",
		levelcord.DefaultVoiceTickInterval,
	)
	viper.SetDefault("xp.backup_dir", levelcord.DefaultBackupDir)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault(
		"discord.log_level",
		levelcord.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		levelcord.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		levelcord.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.startup_message",
		levelcord.DefaultDiscordStartupMessage,
	)
	viper.SetDefault(
		"discord.custom_status",
		levelcord.DefaultDiscordCustomStatus,
	)
	viper.SetDefault(
		"discord.announce_interval",
		levelcord.DefaultAnnounceInterval,
	)
	viper.SetDefault("discord.announce_burst", levelcord.DefaultAnnounceBurst)
	viper.SetDefault("discord.profile_font", "")
	viper.SetDefault("discord.level_roles", map[string]string{})

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", levelcord.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", levelcord.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", levelcord.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		levelcord.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", levelcord.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", levelcord.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		levelcord.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		levelcord.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"api.cors.expose_headers",
		levelcord.DefaultCORSExposeHeaders,
	)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", levelcord.DefaultCORSMaxAge)
	viper.SetDefault("api.cors.allow_credentials", false)

	envPrefix := os.Getenv(levelcord.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = levelcord.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.expose_headers",
		viper.GetStringSlice("api.cors.expose_headers"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		raw := viper.GetString(key)
		if cur, ok := viper.Get(key).(*slog.LevelVar); ok {
			// initConfig runs once per Execute. A key converted by an
			// earlier run stringifies as "LevelVar(INFO)", and its
			// viper.Set value outranks the environment, so resolve the
			// rerun by hand: current level, unless the env says otherwise.
			raw = cur.Level().String()
			envKey := strings.ToUpper(envPrefix + "_" + replacer.Replace(key))
			if fromEnv := os.Getenv(envKey); fromEnv != "" {
				raw = fromEnv
			}
		}
		logLevelVar, err := levelStringToLevelVar(raw)
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
