// Package levelcord implements a Discord guild leveling bot. Members
// earn XP for text activity (cooldown-gated) and for time spent in
// voice channels; levels are derived from cumulative XP, and the bot
// exposes the standings over slash commands and a small read-only
// HTTP API.
package levelcord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

var (
	// Version is the release version, set at build time
	Version = "dev"

	// CommitSHA is the git commit, set at build time
	CommitSHA = ""

	// BuildTime is the build timestamp, set at build time
	BuildTime = ""

	defaultLogWriter io.Writer = os.Stdout
)

// LevelCord is the top-level bot: it owns the database, the XP ledger,
// the Discord session, the voice tracker and the optional HTTP API.
type LevelCord struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db      *gorm.DB
	writeDB *database
	ledger  XPLedger

	discord *Discord
	api     *API
	tracker *VoiceTracker

	// lastCounted tracks, per guild:user, when a message last earned
	// XP. Keeping this out of the ledger means a restart forgives
	// in-flight cooldowns but never loses XP.
	lastCounted   map[string]time.Time
	lastCountedMu sync.Mutex

	// announceLimiter caps level-up announcements so a burst of
	// level-ups can't flood a channel
	announceLimiter *rate.Limiter

	runMu     sync.Mutex
	startedAt time.Time
}

// New creates a LevelCord instance from the given config. Run must be
// called to connect and begin processing events.
func New(config *Config) (*LevelCord, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	lc := &LevelCord{
		config:      config,
		tracker:     NewVoiceTracker(),
		lastCounted: map[string]time.Time{},
	}

	lc.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	lc.logger = slog.New(lc.logHandler)
	slog.SetDefault(lc.logger)

	config.Discord.httpClient = config.HTTPClient

	disc, err := newDiscord(config.Discord)
	if err != nil {
		return nil, err
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")

	lc.discord = disc
	disc.lc = lc

	interval := config.Discord.AnnounceInterval
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	burst := config.Discord.AnnounceBurst
	if burst <= 0 {
		burst = DefaultAnnounceBurst
	}
	lc.announceLimiter = rate.NewLimiter(rate.Every(interval), burst)

	return lc, nil
}

// Run connects to Discord and serves until ctx is canceled.
func (lc *LevelCord) Run(ctx context.Context) error {
	// prevents concurrent runs
	lc.runMu.Lock()
	defer lc.runMu.Unlock()

	lc.startedAt = time.Now()
	logger := lc.logger
	logger.LogAttrs(
		ctx, slog.LevelInfo, "starting",
		slog.String("version", Version),
		slog.Any("config", lc.config),
	)

	startupCtx, startupCancel := context.WithTimeout(
		ctx, lc.config.StartupTimeout,
	)
	defer startupCancel()

	db, err := CreateDB(
		startupCtx, lc.config.DatabaseType, lc.config.Database,
	)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	lc.db = db
	lc.writeDB = newDatabaseWrapper(
		db,
		lc.config.DatabaseType == dbTypePostgres,
		lc.logger,
	)
	lc.ledger = NewXPLedger(
		lc.writeDB,
		lc.config.DatabaseType,
		lc.config.Database,
		lc.logger,
	)

	session, err := lc.discord.newSession()
	if err != nil {
		return err
	}
	lc.discord.session = session

	gateway, err := session.GatewayBot()
	if err != nil {
		return fmt.Errorf("error querying gateway: %w", err)
	}
	lc.logger.InfoContext(
		ctx,
		"gateway",
		"url", gateway.URL,
		"shards", gateway.Shards,
		"session_start_remaining", gateway.SessionStartLimit.Remaining,
	)

	lc.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(lc.discord.handlerReady()),
		session.AddHandler(lc.discord.handlerConnect()),
		session.AddHandler(lc.discord.handlerDisconnect()),
		session.AddHandler(lc.handleMessageCreate()),
		session.AddHandler(lc.handleVoiceStateUpdate()),
		session.AddHandler(lc.handleInteractionCreate()),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if _, err = lc.discord.registerCommands(); err != nil {
		_ = session.Close()
		return fmt.Errorf("error registering commands: %w", err)
	}

	if lc.config.API.Enabled {
		api, apiErr := newAPI(lc, lc.config.API, lc.logHandler)
		if apiErr != nil {
			_ = session.Close()
			return apiErr
		}
		lc.api = api
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(
		func() error {
			err := lc.runVoiceAccrual(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	)

	if lc.api != nil {
		g.Go(
			func() error {
				serveErr := lc.api.Serve(runCtx)
				if errors.Is(serveErr, http.ErrServerClosed) {
					return nil
				}
				return serveErr
			},
		)
	}

	g.Go(
		func() error {
			<-runCtx.Done()
			lc.shutdown()
			return nil
		},
	)

	return g.Wait()
}

// shutdown closes the gateway connection, drains the HTTP server and
// closes the database.
func (lc *LevelCord) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), lc.config.ShutdownTimeout,
	)
	defer cancel()
	lc.logger.Info("shutting down")

	for _, removeHandler := range lc.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	if err := lc.discord.session.Close(); err != nil {
		lc.logger.Error("error closing discord session", tint.Err(err))
	}

	if lc.api != nil {
		if err := lc.api.Shutdown(shutdownCtx); err != nil {
			lc.logger.Error("error shutting down api", tint.Err(err))
		}
	}

	if sqlDB, err := lc.db.DB(); err == nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			lc.logger.Error("error closing database", tint.Err(closeErr))
		}
	}
	lc.logger.Info("shutdown complete")
}

// handleMessageCreate grants text XP for guild messages. Bot accounts
// and DMs never earn anything; messages inside the guild's cooldown
// window still count toward nothing at all (no partial credit).
func (lc *LevelCord) handleMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		if s.State != nil && s.State.User != nil &&
			m.Author.ID == s.State.User.ID {
			return
		}

		ctx, cancel := context.WithTimeout(
			context.Background(), dbOperationTimeout,
		)
		defer cancel()
		log := lc.logger.With(loggerNameKey, "message_xp")

		cooldown, err := lc.ledger.Cooldown(ctx, m.GuildID)
		if err != nil {
			log.ErrorContext(ctx, "error reading cooldown", tint.Err(err))
			return
		}
		if !lc.messageCooldownElapsed(
			m.Author.ID, m.GuildID, time.Duration(cooldown)*time.Second,
		) {
			return
		}

		if err = lc.ledger.AddMessage(ctx, m.Author.ID, m.GuildID); err != nil {
			log.ErrorContext(
				ctx,
				"error counting message",
				tint.Err(err),
				"user_id", m.Author.ID,
				"guild_id", m.GuildID,
			)
			return
		}
		newLevel, err := lc.ledger.AddXP(
			ctx, m.Author.ID, m.GuildID, lc.config.XP.TextXP, ModeText,
		)
		if err != nil {
			log.ErrorContext(
				ctx,
				"error granting text xp",
				tint.Err(err),
				"user_id", m.Author.ID,
				"guild_id", m.GuildID,
			)
			return
		}
		if err = lc.ledger.LogHistory(
			ctx, m.Author.ID, m.GuildID, ModeText, lc.config.XP.TextXP,
		); err != nil {
			log.ErrorContext(ctx, "error logging history", tint.Err(err))
		}

		if newLevel > 0 {
			lc.announceLevelUpTo(
				ctx, m.Author.ID, m.GuildID, ModeText, newLevel, m.ChannelID,
			)
			lc.grantLevelRole(ctx, m.Author.ID, m.GuildID, newLevel)
		}
	}
}

// messageCooldownElapsed reports whether the user's last counted
// message is outside the cooldown window, and if so, marks now as the
// last counted time.
func (lc *LevelCord) messageCooldownElapsed(
	userID string,
	guildID string,
	cooldown time.Duration,
) bool {
	key := guildID + ":" + userID
	now := time.Now()

	lc.lastCountedMu.Lock()
	defer lc.lastCountedMu.Unlock()
	if last, ok := lc.lastCounted[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	lc.lastCounted[key] = now
	return true
}

// handleVoiceStateUpdate keeps the voice tracker in sync with the
// gateway. Joining or moving tracks the user; a nil channel means they
// left voice entirely.
func (lc *LevelCord) handleVoiceStateUpdate() func(
	s *discordgo.Session,
	v *discordgo.VoiceStateUpdate,
) {
	return func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
			return
		}
		if v.ChannelID == "" {
			lc.tracker.Untrack(v.UserID)
			return
		}
		lc.tracker.Track(v.UserID, v.GuildID)
	}
}

// announceLevelUp posts a level-up message to the guild's configured
// announcement channel. Used by the voice accrual path, which has no
// originating channel to fall back to.
func (lc *LevelCord) announceLevelUp(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
	level int,
) {
	lc.announceLevelUpTo(ctx, userID, guildID, mode, level, "")
}

func (lc *LevelCord) announceLevelUpTo(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
	level int,
	fallbackChannelID string,
) {
	log := lc.logger.With(loggerNameKey, "announcements")

	enabled, err := lc.ledger.NotifyEnabled(ctx, userID, guildID)
	if err != nil {
		log.ErrorContext(ctx, "error reading notify flag", tint.Err(err))
		return
	}
	if !enabled {
		return
	}

	channelID, err := lc.ledger.NotifyChannel(ctx, guildID)
	if err != nil {
		log.ErrorContext(ctx, "error reading notify channel", tint.Err(err))
		return
	}
	if channelID == "" {
		channelID = fallbackChannelID
	}
	if channelID == "" {
		return
	}

	if !lc.announceLimiter.Allow() {
		log.WarnContext(
			ctx,
			"announcement rate limited",
			"user_id", userID,
			"guild_id", guildID,
			"level", level,
		)
		return
	}

	if err = lc.discord.channelMessageSend(
		channelID, fmt.Sprintf(
			"%s reached %s level **%d**!", mentionUser(userID), mode, level,
		),
	); err != nil {
		log.ErrorContext(ctx, "error sending announcement", tint.Err(err))
	}
}

// grantLevelRole assigns the configured reward role for the reached
// level, if any.
func (lc *LevelCord) grantLevelRole(
	ctx context.Context,
	userID string,
	guildID string,
	level int,
) {
	roleID, ok := lc.config.Discord.LevelRoles[level]
	if !ok || roleID == "" {
		return
	}
	err := lc.discord.session.GuildMemberRoleAdd(guildID, userID, roleID)
	if err != nil {
		lc.logger.ErrorContext(
			ctx,
			"error granting level role",
			tint.Err(err),
			"user_id", userID,
			"guild_id", guildID,
			"role_id", roleID,
			"level", level,
		)
		return
	}
	lc.logger.InfoContext(
		ctx,
		"granted level role",
		"user_id", userID,
		"guild_id", guildID,
		"role_id", roleID,
		"level", level,
	)
}
