//nolint:lll // struct tags can't be split
package levelcord

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "LEVELCORD_ENV_PREFIX"
	DefaultEnvPrefix   = "LC"

	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "levelcord.sqlite3"
	DefaultLogLevel     = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	// DefaultTextXP is the amount of XP granted per cooldown-eligible
	// text message.
	DefaultTextXP = 5

	// DefaultVoiceXP is the amount of XP granted per voice accrual tick
	// to each tracked user.
	DefaultVoiceXP = 10

	// DefaultVoiceTickInterval is how often voice XP and voice-minutes
	// are credited to tracked users.
	DefaultVoiceTickInterval = time.Minute

	// DefaultCooldownSeconds is the per-guild minimum gap between
	// XP-eligible text messages, unless overridden via /setcooldown.
	DefaultCooldownSeconds = 30

	// DefaultLeaderboardLimit caps /scoreboard output.
	DefaultLeaderboardLimit = 10

	// DefaultHistoryLimit caps /xphistory output.
	DefaultHistoryLimit = 20

	DefaultBackupDir = "backups"

	DefaultAnnounceInterval = time.Second
	DefaultAnnounceBurst    = 5

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultAPILogLevel           = slog.LevelInfo

	DefaultAPIListen     = "127.0.0.1:5000"
	defaultListenNetwork = "tcp"

	DefaultDiscordCustomStatus   = "/level | /scoreboard"
	DefaultDiscordStartupMessage = "I'm here!"

	// DefaultDiscordGatewayIntent covers guild metadata, guild messages
	// (for text XP) and voice state changes (for voice tracking). Message
	// content itself isn't needed - only the fact that a message was sent.
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	DefaultCORSMaxAge = 12 * time.Hour
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Cache-Control",
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
	}
)

// Config is the top-level configuration for the bot, normally populated
// by the cmd package via viper.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout bounds bot initialization (gateway connect, command
	// registration). If exceeded, startup is aborted.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// XP configures grant amounts, cadence and backups
	XP *XPConfig `yaml:"xp" mapstructure:"xp" json:"xp"`

	// Discord configures the bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// API configures the optional read-only HTTP API
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// validate checks scalar bounds that viper/env can't enforce.
func (c *Config) validate() error {
	var errs []error
	switch c.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			fmt.Errorf(
				"invalid database type %q (must be %q or %q)",
				c.DatabaseType, dbTypeSQLite, dbTypePostgres,
			),
		)
	}
	if c.Discord == nil || c.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required"))
	}
	if c.XP != nil {
		if c.XP.TextXP <= 0 {
			errs = append(errs, errors.New("xp.text_xp must be > 0"))
		}
		if c.XP.VoiceXP <= 0 {
			errs = append(errs, errors.New("xp.voice_xp must be > 0"))
		}
		if c.XP.VoiceTickInterval <= 0 {
			errs = append(errs, errors.New("xp.voice_tick_interval must be > 0"))
		}
	}
	return errors.Join(errs...)
}

// XPConfig configures XP grant amounts and the voice accrual cadence.
//
//nolint:lll // can't break tags
type XPConfig struct {
	// XP granted per cooldown-eligible text message
	TextXP int64 `yaml:"text_xp" mapstructure:"text_xp" json:"text_xp"`

	// XP granted per voice tick to each tracked user
	VoiceXP int64 `yaml:"voice_xp" mapstructure:"voice_xp" json:"voice_xp"`

	// Interval between voice accrual ticks. Each tick also credits one
	// voice-minute, so changing this changes what a "voice minute" means.
	VoiceTickInterval time.Duration `yaml:"voice_tick_interval" mapstructure:"voice_tick_interval" json:"voice_tick_interval"`

	// Directory where /backupxp snapshots are written
	BackupDir string `yaml:"backup_dir" mapstructure:"backup_dir" json:"backup_dir"`
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// Sent to the first guild notification channel on connect, if set
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// Custom status for the bot user
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// LevelRoles maps a text level to a role ID granted when a user
	// reaches that level. Empty map disables role grants.
	LevelRoles map[int]string `yaml:"level_roles" mapstructure:"level_roles" json:"level_roles"`

	// Minimum interval between level-up announcement sends
	AnnounceInterval time.Duration `yaml:"announce_interval" mapstructure:"announce_interval" json:"announce_interval"`

	// Announcement burst allowance
	AnnounceBurst int `yaml:"announce_burst" mapstructure:"announce_burst" json:"announce_burst"`

	// Path to a TTF font used for profile cards. Empty uses the
	// embedded Go Regular face.
	ProfileFont string `yaml:"profile_font" mapstructure:"profile_font" json:"profile_font"`

	httpClient *http.Client
}

// APIConfig configures the read-only HTTP API. The server only starts
// when Enabled is true.
//
//nolint:lll // can't break tags
type APIConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true,hostname|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"required_if=Enabled true,min=1s"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"required_if=Enabled true,min=1s"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"required_if=Enabled true,min=1s"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"required_if=Enabled true,min=1s"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	defaultMethods := make([]string, len(DefaultCORSAllowMethods))
	copy(defaultMethods, DefaultCORSAllowMethods)

	defaultHeaders := make([]string, len(DefaultCORSAllowHeaders))
	copy(defaultHeaders, DefaultCORSAllowHeaders)

	defaultExpose := make([]string, len(DefaultCORSExposeHeaders))
	copy(defaultExpose, DefaultCORSExposeHeaders)

	return CORSConfig{
		AllowOrigins:  []string{},
		AllowMethods:  defaultMethods,
		AllowHeaders:  defaultHeaders,
		ExposeHeaders: defaultExpose,
		MaxAge:        DefaultCORSMaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		XP: &XPConfig{
			TextXP:            DefaultTextXP,
			VoiceXP:           DefaultVoiceXP,
			VoiceTickInterval: DefaultVoiceTickInterval,
			BackupDir:         DefaultBackupDir,
		},
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultDiscordStartupMessage,
			CustomStatus:      DefaultDiscordCustomStatus,
			LevelRoles:        map[int]string{},
			AnnounceInterval:  DefaultAnnounceInterval,
			AnnounceBurst:     DefaultAnnounceBurst,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
	}
}
