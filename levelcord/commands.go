package levelcord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// responses for conditions the user can fix
	responseGuildOnly      = "That command only works in a server."
	responseInvalidMode    = "Unknown mode. Use `text` or `voice`."
	responseConfirmMissing = "Reset not performed. Pass `confirm: CONFIRM` " +
		"to erase this member's XP."

	// generic apology for storage or API failures; details go to the
	// log, not the channel
	responseStorageError = "Something went wrong on my end. Try again in a moment."

	responseHelp = "**LevelCord commands**\n" +
		"`/xp` - how earning works\n" +
		"`/level` `/rank` - your level and position\n" +
		"`/scoreboard` - the server leaderboard\n" +
		"`/profile` - your profile card\n" +
		"`/xphistory` - your recent XP gains\n" +
		"`/notifyxp` - toggle your level-up pings\n" +
		"Admin: `/setcooldown` `/setnotif` `/resetxp` `/backupxp`"
)

// handleInteractionCreate routes slash commands. Replies that expose
// per-user data or confirm admin actions are ephemeral; discovery
// commands (scoreboard, profile) post publicly.
func (lc *LevelCord) handleInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		ctx, cancel := context.WithTimeout(
			context.Background(), discordInteractionTimeout,
		)
		defer cancel()

		data := i.ApplicationCommandData()
		log := lc.logger.With(
			loggerNameKey, "interactions",
			"command", data.Name,
			"user_id", interactionUserID(i.Interaction),
			"guild_id", i.GuildID,
		)
		log.InfoContext(ctx, "received command")

		if i.GuildID == "" {
			lc.respondEphemeral(ctx, i.Interaction, responseGuildOnly)
			return
		}

		switch data.Name {
		case DiscordSlashCommandXP:
			lc.commandXP(ctx, i.Interaction)
		case DiscordSlashCommandLevel:
			lc.commandLevel(ctx, i.Interaction, data)
		case DiscordSlashCommandScoreboard:
			lc.commandScoreboard(ctx, i.Interaction, data)
		case DiscordSlashCommandRank:
			lc.commandRank(ctx, i.Interaction, data)
		case DiscordSlashCommandProfile:
			lc.commandProfile(ctx, i.Interaction, data)
		case DiscordSlashCommandHistory:
			lc.commandHistory(ctx, i.Interaction, data)
		case DiscordSlashCommandNotifyXP:
			lc.commandNotifyXP(ctx, i.Interaction, data)
		case DiscordSlashCommandSetCooldown:
			lc.commandSetCooldown(ctx, i.Interaction, data)
		case DiscordSlashCommandSetNotif:
			lc.commandSetNotif(ctx, i.Interaction, data)
		case DiscordSlashCommandResetXP:
			lc.commandResetXP(ctx, i.Interaction, data)
		case DiscordSlashCommandBackupXP:
			lc.commandBackupXP(ctx, i.Interaction)
		case DiscordSlashCommandHelp:
			lc.respondEphemeral(ctx, i.Interaction, responseHelp)
		default:
			log.WarnContext(ctx, "unknown command")
		}
	}
}

// targetUser resolves the user option, defaulting to the invoker.
func targetUser(
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) (userID string, username string) {
	opts := discordInteractionOptions(data)
	if opt, ok := opts[commandOptionUser]; ok {
		userID = opt.Value.(string)
		if resolved, found := data.Resolved.Users[userID]; found {
			username = resolved.Username
		}
		return userID, username
	}
	userID = interactionUserID(interaction)
	if interaction.Member != nil && interaction.Member.User != nil {
		username = interaction.Member.User.Username
	}
	return userID, username
}

// optionMode resolves the mode option, defaulting to text.
func optionMode(data discordgo.ApplicationCommandInteractionData) XPMode {
	opts := discordInteractionOptions(data)
	if opt, ok := opts[commandOptionMode]; ok {
		return XPMode(opt.Value.(string))
	}
	return ModeText
}

// commandXP explains the earning rules with the live configured values.
func (lc *LevelCord) commandXP(
	ctx context.Context,
	interaction *discordgo.Interaction,
) {
	cooldown, err := lc.ledger.Cooldown(ctx, interaction.GuildID)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"**How XP works**\n"+
				"Messages earn **%d** text XP, at most once every %d seconds.\n"+
				"Each minute in a voice channel earns **%d** voice XP and one "+
				"voice-minute.\n"+
				"Level L needs 50×(L-1)² XP: level 2 at 50, level 3 "+
				"at 200, and so on.\n"+
				"Check yourself with /level, /rank or /profile.",
			lc.config.XP.TextXP, cooldown, lc.config.XP.VoiceXP,
		),
	)
}

func (lc *LevelCord) commandLevel(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	mode := optionMode(data)
	if !mode.valid() {
		lc.respondEphemeral(ctx, interaction, responseInvalidMode)
		return
	}
	userID, _ := targetUser(interaction, data)

	level, err := lc.ledger.Level(ctx, userID, interaction.GuildID, mode)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	xp, err := lc.ledger.XP(ctx, userID, interaction.GuildID, mode)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"%s is %s level **%d** (%s)",
			mentionUser(userID), mode, level, formatProgress(xp, level),
		),
	)
}

func (lc *LevelCord) commandScoreboard(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	mode := "text"
	if opt, ok := opts[commandOptionMode]; ok {
		mode = opt.Value.(string)
	}
	limit := DefaultLeaderboardLimit
	if opt, ok := opts[commandOptionLimit]; ok {
		limit = int(opt.Value.(float64))
	}

	entries, err := lc.ledger.Leaderboard(
		ctx, interaction.GuildID, mode, limit,
	)
	if err != nil {
		if errors.Is(err, ErrUnknownMode) {
			lc.respondEphemeral(ctx, interaction, responseInvalidMode)
			return
		}
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondPublic(ctx, interaction, formatScoreboard(mode, entries))
}

func (lc *LevelCord) commandRank(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	mode := "text"
	if opt, ok := opts[commandOptionMode]; ok {
		mode = opt.Value.(string)
	}
	userID, _ := targetUser(interaction, data)

	rank, err := lc.ledger.Rank(ctx, userID, interaction.GuildID, mode)
	if err != nil {
		if errors.Is(err, ErrUnknownMode) {
			lc.respondEphemeral(ctx, interaction, responseInvalidMode)
			return
		}
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"%s is ranked **%s** by %s in this server",
			mentionUser(userID), ordinal(rank), strings.ReplaceAll(mode, "_", " "),
		),
	)
}

func (lc *LevelCord) commandProfile(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	userID, username := targetUser(interaction, data)
	if username == "" {
		username = userID
	}

	// rendering plus an avatar fetch can miss the 3s interaction
	// deadline, so defer first and edit the response with the card
	err := lc.discord.session.InteractionRespond(
		interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	)
	if err != nil {
		lc.logger.ErrorContext(ctx, "error deferring response", tint.Err(err))
		return
	}

	card, err := lc.renderProfileCard(ctx, interaction, userID, username, data)
	if err != nil {
		lc.logger.ErrorContext(
			ctx,
			"error rendering profile card",
			tint.Err(err),
			"user_id", userID,
		)
		msg := responseStorageError
		_, _ = lc.discord.session.InteractionResponseEdit(
			interaction, &discordgo.WebhookEdit{Content: &msg},
		)
		return
	}

	_, err = lc.discord.session.InteractionResponseEdit(
		interaction, &discordgo.WebhookEdit{
			Files: []*discordgo.File{
				{
					Name:        "profile.png",
					ContentType: "image/png",
					Reader:      card,
				},
			},
		},
	)
	if err != nil {
		lc.logger.ErrorContext(
			ctx, "error sending profile card", tint.Err(err),
		)
	}
}

func (lc *LevelCord) commandHistory(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	var mode XPMode
	if opt, ok := opts[commandOptionMode]; ok {
		mode = XPMode(opt.Value.(string))
		if !mode.valid() {
			lc.respondEphemeral(ctx, interaction, responseInvalidMode)
			return
		}
	}
	limit := DefaultHistoryLimit
	if opt, ok := opts[commandOptionLimit]; ok {
		limit = int(opt.Value.(float64))
	}
	userID := interactionUserID(interaction)

	entries, err := lc.ledger.History(
		ctx, userID, interaction.GuildID, mode, limit,
	)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(ctx, interaction, formatHistory(entries))
}

func (lc *LevelCord) commandNotifyXP(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	enabled := true
	if opt, ok := opts[commandOptionEnabled]; ok {
		enabled = opt.Value.(bool)
	}
	userID := interactionUserID(interaction)

	err := lc.ledger.SetNotifyEnabled(
		ctx, userID, interaction.GuildID, enabled,
	)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	msg := "Level-up notifications **enabled** for you."
	if !enabled {
		msg = "Level-up notifications **disabled** for you."
	}
	lc.respondEphemeral(ctx, interaction, msg)
}

func (lc *LevelCord) commandSetCooldown(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	opt, ok := opts[commandOptionSeconds]
	if !ok {
		lc.respondEphemeral(ctx, interaction, "Missing `seconds` option.")
		return
	}
	seconds := int(opt.Value.(float64))
	if seconds <= 0 {
		lc.respondEphemeral(
			ctx, interaction, "Cooldown must be at least 1 second.",
		)
		return
	}

	if err := lc.ledger.SetCooldown(ctx, interaction.GuildID, seconds); err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"Text XP cooldown set to **%d** seconds.", seconds,
		),
	)
}

func (lc *LevelCord) commandSetNotif(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	var channelID string
	if opt, ok := opts[commandOptionChannel]; ok {
		channelID = opt.Value.(string)
	}

	err := lc.ledger.SetNotifyChannel(ctx, interaction.GuildID, channelID)
	if err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	if channelID == "" {
		lc.respondEphemeral(
			ctx, interaction,
			"Announcement channel cleared. Level-ups will be announced "+
				"where they happen.",
		)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"Level-ups will be announced in <#%s>.", channelID,
		),
	)
}

func (lc *LevelCord) commandResetXP(
	ctx context.Context,
	interaction *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) {
	opts := discordInteractionOptions(data)
	confirm, ok := opts[commandOptionConfirm]
	if !ok || confirm.Value.(string) != resetConfirmToken {
		lc.respondEphemeral(ctx, interaction, responseConfirmMissing)
		return
	}
	userOpt, ok := opts[commandOptionUser]
	if !ok {
		lc.respondEphemeral(ctx, interaction, "Missing `user` option.")
		return
	}
	userID := userOpt.Value.(string)

	if err := lc.ledger.ResetUser(ctx, userID, interaction.GuildID); err != nil {
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf(
			"XP for %s has been erased. Their history log is kept.",
			mentionUser(userID),
		),
	)
}

func (lc *LevelCord) commandBackupXP(
	ctx context.Context,
	interaction *discordgo.Interaction,
) {
	dest := BackupFilename(lc.config.XP.BackupDir, time.Now())
	if err := lc.ledger.Backup(ctx, dest); err != nil {
		if errors.Is(err, ErrBackupUnsupported) {
			lc.respondEphemeral(
				ctx, interaction,
				"Backups are only available with a sqlite database.",
			)
			return
		}
		lc.respondStorageError(ctx, interaction, err)
		return
	}
	lc.respondEphemeral(
		ctx, interaction, fmt.Sprintf("Backup written to `%s`.", dest),
	)
}

func (lc *LevelCord) respondEphemeral(
	ctx context.Context,
	interaction *discordgo.Interaction,
	content string,
) {
	err := lc.discord.session.InteractionRespond(
		interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		lc.logger.ErrorContext(
			ctx, "error sending interaction response", tint.Err(err),
		)
	}
}

func (lc *LevelCord) respondPublic(
	ctx context.Context,
	interaction *discordgo.Interaction,
	content string,
) {
	err := lc.discord.session.InteractionRespond(
		interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			// discord rejects messages over 2000 characters
			Data: &discordgo.InteractionResponseData{
				Content: truncate(content, 2000),
			},
		},
	)
	if err != nil {
		lc.logger.ErrorContext(
			ctx, "error sending interaction response", tint.Err(err),
		)
	}
}

// respondStorageError logs the real error and sends the generic apology.
func (lc *LevelCord) respondStorageError(
	ctx context.Context,
	interaction *discordgo.Interaction,
	err error,
) {
	lc.logger.ErrorContext(ctx, "command failed", tint.Err(err))
	lc.respondEphemeral(ctx, interaction, responseStorageError)
}

// formatScoreboard renders leaderboard entries as a numbered list.
func formatScoreboard(mode string, entries []LeaderboardEntry) string {
	if len(entries) == 0 {
		return "Nobody has earned anything here yet."
	}
	unit := map[string]string{
		"text":       "XP",
		"voice":      "XP",
		"messages":   "messages",
		"voice_time": "min",
	}[mode]

	var b strings.Builder
	fmt.Fprintf(
		&b, "**Leaderboard - %s**\n", strings.ReplaceAll(mode, "_", " "),
	)
	for i, entry := range entries {
		fmt.Fprintf(
			&b, "%d. %s - %d %s\n",
			i+1, mentionUser(entry.UserID), entry.Value, unit,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(entries []XPHistory) string {
	if len(entries) == 0 {
		return "No XP history yet."
	}
	var b strings.Builder
	b.WriteString("**Recent XP gains**\n")
	for _, entry := range entries {
		// discord renders <t:...:R> as a relative timestamp
		fmt.Fprintf(
			&b, "+%d %s XP <t:%d:R>\n",
			entry.Amount, entry.Mode, entry.CreatedAt/1000,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatProgress describes XP progress through the current level.
func formatProgress(xp int64, level int) string {
	floor := levelThreshold(level)
	ceil := levelThreshold(level + 1)
	return fmt.Sprintf("%d/%d XP to level %d", xp-floor, ceil-floor, level+1)
}

// levelThreshold is the minimum XP for the given level.
func levelThreshold(level int) int64 {
	n := int64(level - 1)
	return 50 * n * n
}

func mentionUser(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
