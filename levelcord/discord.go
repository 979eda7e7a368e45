package levelcord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	DiscordSlashCommandXP          = "xp"
	DiscordSlashCommandLevel       = "level"
	DiscordSlashCommandScoreboard  = "scoreboard"
	DiscordSlashCommandRank        = "rank"
	DiscordSlashCommandProfile     = "profile"
	DiscordSlashCommandHistory     = "xphistory"
	DiscordSlashCommandNotifyXP    = "notifyxp"
	DiscordSlashCommandSetCooldown = "setcooldown"
	DiscordSlashCommandSetNotif    = "setnotif"
	DiscordSlashCommandResetXP     = "resetxp"
	DiscordSlashCommandBackupXP    = "backupxp"
	DiscordSlashCommandHelp        = "help"

	// option names shared across commands
	commandOptionMode    = "mode"
	commandOptionUser    = "user"
	commandOptionLimit   = "limit"
	commandOptionSeconds = "seconds"
	commandOptionChannel = "channel"
	commandOptionEnabled = "enabled"
	commandOptionConfirm = "confirm"

	// resetConfirmToken must be typed verbatim into /resetxp
	resetConfirmToken = "CONFIRM"
)

// modeChoices is the text/voice option offered on per-mode commands.
var modeChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "text", Value: string(ModeText)},
	{Name: "voice", Value: string(ModeVoice)},
}

// scoreboardChoices adds the activity counters to the XP modes.
var scoreboardChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "text", Value: "text"},
	{Name: "voice", Value: "voice"},
	{Name: "messages", Value: "messages"},
	{Name: "voice time", Value: "voice_time"},
}

// Discord manages the gateway session: connecting, registering slash
// commands, and routing events to the LevelCord handlers.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	discordgoRemoveHandlerFuncs []func()
	lc                          *LevelCord
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord token not set")
	}
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes the underlying discordgo session with the
// configured token, intents and log level.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = true
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		session.SetHTTPClient(d.config.httpClient)
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}

	return session, nil
}

// userModeCommand builds a command taking an optional mode and an
// optional target user, the shape shared by /xp, /level and /rank.
func userModeCommand(name string, description string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Type:        discordgo.ChatApplicationCommand,
		Description: description,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionMode,
				Description: "XP type (default: text)",
				Choices:     modeChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "Member to look up (default: you)",
			},
		},
	}
}

func (*Discord) appCommandXP() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandXP,
		Description: "Explain how XP is earned here",
	}
}

func (*Discord) appCommandLevel() *discordgo.ApplicationCommand {
	return userModeCommand(DiscordSlashCommandLevel, "Show current level")
}

func (*Discord) appCommandRank() *discordgo.ApplicationCommand {
	cmd := userModeCommand(
		DiscordSlashCommandRank, "Show leaderboard position",
	)
	cmd.Options[0].Choices = scoreboardChoices
	return cmd
}

func (*Discord) appCommandScoreboard() *discordgo.ApplicationCommand {
	minLimit := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandScoreboard,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Show the guild leaderboard",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionMode,
				Description: "Counter to rank by (default: text)",
				Choices:     scoreboardChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        commandOptionLimit,
				Description: "Number of entries (default: 10)",
				MinValue:    &minLimit,
				MaxValue:    25,
			},
		},
	}
}

func (*Discord) appCommandProfile() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandProfile,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Show your profile card",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "Member to look up (default: you)",
			},
		},
	}
}

func (*Discord) appCommandHistory() *discordgo.ApplicationCommand {
	minLimit := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandHistory,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Show your recent XP gains",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionMode,
				Description: "Filter by XP type (default: all)",
				Choices:     modeChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        commandOptionLimit,
				Description: "Number of entries (default: 20)",
				MinValue:    &minLimit,
				MaxValue:    50,
			},
		},
	}
}

func (*Discord) appCommandNotifyXP() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandNotifyXP,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Toggle your level-up notifications",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        commandOptionEnabled,
				Description: "Enable level-up pings for you",
				Required:    true,
			},
		},
	}
}

func (*Discord) appCommandSetCooldown() *discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	minSeconds := float64(1)
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandSetCooldown,
		Type:                     discordgo.ChatApplicationCommand,
		Description:              "Set the text XP cooldown for this server",
		DefaultMemberPermissions: &adminOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        commandOptionSeconds,
				Description: "Seconds between counted messages",
				Required:    true,
				MinValue:    &minSeconds,
				MaxValue:    3600,
			},
		},
	}
}

func (*Discord) appCommandSetNotif() *discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandSetNotif,
		Type:                     discordgo.ChatApplicationCommand,
		Description:              "Set the level-up announcement channel",
		DefaultMemberPermissions: &adminOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionChannel,
				Name: commandOptionChannel,
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildText,
				},
				Description: "Channel for announcements (omit to clear)",
			},
		},
	}
}

func (*Discord) appCommandResetXP() *discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandResetXP,
		Type:                     discordgo.ChatApplicationCommand,
		Description:              "Erase a member's XP in this server",
		DefaultMemberPermissions: &adminOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "Member to reset",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionConfirm,
				Description: "Type CONFIRM to proceed",
				Required:    true,
			},
		},
	}
}

func (*Discord) appCommandBackupXP() *discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandBackupXP,
		Type:                     discordgo.ChatApplicationCommand,
		Description:              "Snapshot the XP database",
		DefaultMemberPermissions: &adminOnly,
	}
}

func (*Discord) appCommandHelp() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandHelp,
		Type:        discordgo.ChatApplicationCommand,
		Description: "List available commands",
	}
}

// registerCommands sends the bot's commands to the discord bulk
// overwrite endpoint.
func (d *Discord) registerCommands(
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	commands := []*discordgo.ApplicationCommand{
		d.appCommandXP(),
		d.appCommandLevel(),
		d.appCommandScoreboard(),
		d.appCommandRank(),
		d.appCommandProfile(),
		d.appCommandHistory(),
		d.appCommandNotifyXP(),
		d.appCommandSetCooldown(),
		d.appCommandSetNotif(),
		d.appCommandResetXP(),
		d.appCommandBackupXP(),
		d.appCommandHelp(),
	}

	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("created command", "command_name", c.Name, "command_id", c.ID)
	}
	return created, nil
}

// channelMessageSend sends the given message to the given discord channel ID
func (d *Discord) channelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) error {
	_, err := d.session.ChannelMessageSend(channelID, message, opts...)
	return err
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info(
			"ready",
			"session_id", s.State.SessionID,
			"user_id", s.State.User.ID,
			"username", s.State.User.Username,
		)
		if d.config.CustomStatus != "" {
			if err := d.session.UpdateCustomStatus(d.config.CustomStatus); err != nil {
				d.logger.Warn("unable to set custom status", tint.Err(err))
			}
		}
		if d.config.StartupMessage != "" {
			d.sendStartupMessage(r.Guilds)
		}
	}
}

// sendStartupMessage posts the configured startup message to the first
// guild from the ready payload that has an announcement channel set.
func (d *Discord) sendStartupMessage(guilds []*discordgo.Guild) {
	ctx, cancel := context.WithTimeout(
		context.Background(), dbOperationTimeout,
	)
	defer cancel()
	for _, guild := range guilds {
		channelID, err := d.lc.ledger.NotifyChannel(ctx, guild.ID)
		if err != nil {
			d.logger.Warn(
				"error reading notify channel",
				tint.Err(err),
				"guild_id", guild.ID,
			)
			continue
		}
		if channelID == "" {
			continue
		}
		if err = d.channelMessageSend(channelID, d.config.StartupMessage); err != nil {
			d.logger.Warn(
				"unable to send startup message",
				tint.Err(err),
				"channel_id", channelID,
			)
			continue
		}
		return
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		var sessionID string
		var userID string
		var username string

		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
			if s.State.User != nil {
				userID = s.State.User.ID
				username = s.State.User.Username
			}
		}
		d.logger.Info(
			"connected",
			"session_id", sessionID,
			slog.Group("user", "id", userID, "username", username),
		)
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

// DiscordSessionHandler defines the interface for handling Discord
// sessions. This basically defines the methods from `discordgo.Session`
// which are used in this application, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ChannelMessageSend sends a message to a specified channel
	ChannelMessageSend(
		channelID string,
		message string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ApplicationCommandBulkOverwrite overwrites Discord application
	// commands in bulk
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// InteractionResponseEdit modifies the given interaction
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GuildMemberRoleAdd grants a role to a guild member
	GuildMemberRoleAdd(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error

	// UpdateCustomStatus sets the bot's user status to the given string.
	// If empty, sets the bot user to active and removes any existing
	// custom status.
	UpdateCustomStatus(status string) error

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error

	// GatewayBot gets gateway connection metadata
	GatewayBot(options ...discordgo.RequestOption) (st *discordgo.GatewayBotResponse, err error)
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, opts...)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	return created, nil
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d DiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	err := d.session.GuildMemberRoleAdd(guildID, userID, roleID, options...)
	if err != nil {
		d.logger.Error(
			"error granting role",
			tint.Err(err),
			"guild_id", guildID,
			"user_id", userID,
			"role_id", roleID,
		)
	}
	return err
}

func (d DiscordSession) UpdateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

func (d DiscordSession) GatewayBot(options ...discordgo.RequestOption) (
	st *discordgo.GatewayBotResponse,
	err error,
) {
	gb, err := d.session.GatewayBot(options...)
	if err != nil {
		d.logger.Error("error retrieving gateway bot", tint.Err(err))
	}
	return gb, err
}
