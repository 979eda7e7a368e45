package levelcord

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandInteraction builds the interaction payload the gateway would
// deliver for a slash command invoked by user1 in guild1.
func commandInteraction(
	name string,
	opts ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "guild1",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "user1", Username: "alice"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: opts,
			},
		},
	}
}

func stringOption(
	name string,
	value string,
) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func intOption(
	name string,
	value float64,
) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: value,
	}
}

func lastResponse(
	t testing.TB,
	session *mockDiscordSession,
) *discordgo.InteractionResponse {
	t.Helper()
	session.mu.Lock()
	defer session.mu.Unlock()
	require.NotEmpty(t, session.responses, "expected an interaction response")
	return session.responses[len(session.responses)-1]
}

func TestHandleInteractionGuildOnly(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	i := commandInteraction(DiscordSlashCommandXP)
	i.GuildID = ""
	i.User = &discordgo.User{ID: "user1"}
	i.Member = nil
	handler(nil, i)

	resp := lastResponse(t, session)
	assert.Equal(t, responseGuildOnly, resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestHandleInteractionIgnoresNonCommands(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	i := commandInteraction(DiscordSlashCommandXP)
	i.Type = discordgo.InteractionMessageComponent
	handler(nil, i)

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Empty(t, session.responses)
}

func TestCommandXP(t *testing.T) {
	lc, session := testLevelCord(t)
	require.NoError(
		t, lc.ledger.SetCooldown(context.Background(), "guild1", 45),
	)

	handler := lc.handleInteractionCreate()
	handler(nil, commandInteraction(DiscordSlashCommandXP))

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "**5** text XP")
	assert.Contains(t, resp.Data.Content, "once every 45 seconds")
	assert.Contains(t, resp.Data.Content, "**10** voice XP")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestCommandLevel(t *testing.T) {
	lc, session := testLevelCord(t)
	_, err := lc.ledger.AddXP(
		context.Background(), "user1", "guild1", 75, ModeText,
	)
	require.NoError(t, err)

	handler := lc.handleInteractionCreate()
	handler(nil, commandInteraction(DiscordSlashCommandLevel))

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "text level **2**")
	// 75 XP is 25 into level 2, which spans 50..199
	assert.Contains(t, resp.Data.Content, "25/150 XP to level 3")
}

func TestCommandScoreboard(t *testing.T) {
	lc, session := testLevelCord(t)
	ctx := context.Background()
	for userID, amount := range map[string]int64{"alice": 200, "bob": 100} {
		_, err := lc.ledger.AddXP(ctx, userID, "guild1", amount, ModeText)
		require.NoError(t, err)
	}

	handler := lc.handleInteractionCreate()
	handler(nil, commandInteraction(DiscordSlashCommandScoreboard))

	resp := lastResponse(t, session)
	// scoreboard is posted publicly
	assert.Zero(t, resp.Data.Flags)
	assert.Contains(t, resp.Data.Content, "1. <@alice> - 200 XP")
	assert.Contains(t, resp.Data.Content, "2. <@bob> - 100 XP")
}

func TestCommandRank(t *testing.T) {
	lc, session := testLevelCord(t)
	ctx := context.Background()
	_, err := lc.ledger.AddXP(ctx, "user1", "guild1", 50, ModeText)
	require.NoError(t, err)
	_, err = lc.ledger.AddXP(ctx, "other", "guild1", 100, ModeText)
	require.NoError(t, err)

	handler := lc.handleInteractionCreate()
	handler(nil, commandInteraction(DiscordSlashCommandRank))

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "ranked **2nd** by text")
}

func TestCommandHistory(t *testing.T) {
	lc, session := testLevelCord(t)
	ctx := context.Background()
	require.NoError(t, lc.ledger.LogHistory(ctx, "user1", "guild1", ModeText, 5))
	require.NoError(
		t, lc.ledger.LogHistory(ctx, "user1", "guild1", ModeVoice, 10),
	)

	handler := lc.handleInteractionCreate()
	handler(
		nil, commandInteraction(
			DiscordSlashCommandHistory, stringOption(commandOptionMode, "voice"),
		),
	)

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "+10 voice XP")
	assert.NotContains(t, resp.Data.Content, "+5 text XP")
}

func TestCommandNotifyXP(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	handler(
		nil, commandInteraction(
			DiscordSlashCommandNotifyXP,
			&discordgo.ApplicationCommandInteractionDataOption{
				Name:  commandOptionEnabled,
				Type:  discordgo.ApplicationCommandOptionBoolean,
				Value: false,
			},
		),
	)

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "disabled")

	enabled, err := lc.ledger.NotifyEnabled(
		context.Background(), "user1", "guild1",
	)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestCommandSetCooldown(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	handler(
		nil, commandInteraction(
			DiscordSlashCommandSetCooldown, intOption(commandOptionSeconds, 90),
		),
	)

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "**90** seconds")

	cooldown, err := lc.ledger.Cooldown(context.Background(), "guild1")
	require.NoError(t, err)
	assert.Equal(t, 90, cooldown)
}

func TestCommandSetNotif(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	handler(
		nil, commandInteraction(
			DiscordSlashCommandSetNotif,
			stringOption(commandOptionChannel, "chan9"),
		),
	)
	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "<#chan9>")

	channelID, err := lc.ledger.NotifyChannel(context.Background(), "guild1")
	require.NoError(t, err)
	assert.Equal(t, "chan9", channelID)

	// omitting the channel clears the setting
	handler(nil, commandInteraction(DiscordSlashCommandSetNotif))
	resp = lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "cleared")

	channelID, err = lc.ledger.NotifyChannel(context.Background(), "guild1")
	require.NoError(t, err)
	assert.Equal(t, "", channelID)
}

func TestCommandResetXPRequiresConfirmation(t *testing.T) {
	lc, session := testLevelCord(t)
	ctx := context.Background()
	_, err := lc.ledger.AddXP(ctx, "victim", "guild1", 100, ModeText)
	require.NoError(t, err)

	handler := lc.handleInteractionCreate()

	// wrong token: nothing is deleted
	handler(
		nil, commandInteraction(
			DiscordSlashCommandResetXP,
			stringOption(commandOptionUser, "victim"),
			stringOption(commandOptionConfirm, "confirm"),
		),
	)
	resp := lastResponse(t, session)
	assert.Equal(t, responseConfirmMissing, resp.Data.Content)

	xp, err := lc.ledger.XP(ctx, "victim", "guild1", ModeText)
	require.NoError(t, err)
	assert.Equal(t, int64(100), xp)

	// exact token: record is erased
	handler(
		nil, commandInteraction(
			DiscordSlashCommandResetXP,
			stringOption(commandOptionUser, "victim"),
			stringOption(commandOptionConfirm, resetConfirmToken),
		),
	)
	resp = lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "erased")

	xp, err = lc.ledger.XP(ctx, "victim", "guild1", ModeText)
	require.NoError(t, err)
	assert.Equal(t, int64(0), xp)
}

func TestCommandBackupXP(t *testing.T) {
	lc, session := testLevelCord(t)
	lc.config.XP.BackupDir = t.TempDir()
	_, err := lc.ledger.AddXP(
		context.Background(), "user1", "guild1", 10, ModeText,
	)
	require.NoError(t, err)

	handler := lc.handleInteractionCreate()
	handler(nil, commandInteraction(DiscordSlashCommandBackupXP))

	resp := lastResponse(t, session)
	assert.Contains(t, resp.Data.Content, "Backup written to")
	assert.Contains(t, resp.Data.Content, "levelcord-")
}

func TestCommandHelp(t *testing.T) {
	lc, session := testLevelCord(t)
	handler := lc.handleInteractionCreate()

	handler(nil, commandInteraction(DiscordSlashCommandHelp))

	resp := lastResponse(t, session)
	assert.Equal(t, responseHelp, resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestOrdinal(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{1, "1st"},
		{2, "2nd"},
		{3, "3rd"},
		{4, "4th"},
		{11, "11th"},
		{12, "12th"},
		{13, "13th"},
		{21, "21st"},
		{22, "22nd"},
		{23, "23rd"},
		{100, "100th"},
		{101, "101st"},
		{111, "111th"},
	}
	for _, tt := range tests {
		t.Run(
			tt.expected, func(t *testing.T) {
				assert.Equal(t, tt.expected, ordinal(tt.n))
			},
		)
	}
}

func TestLevelThreshold(t *testing.T) {
	assert.Equal(t, int64(0), levelThreshold(1))
	assert.Equal(t, int64(50), levelThreshold(2))
	assert.Equal(t, int64(200), levelThreshold(3))
	assert.Equal(t, int64(450), levelThreshold(4))

	// thresholds and LevelForXP agree at every boundary
	for level := 2; level <= 20; level++ {
		boundary := levelThreshold(level)
		assert.Equal(t, level, LevelForXP(boundary))
		assert.Equal(t, level-1, LevelForXP(boundary-1))
	}
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "25/150 XP to level 3", formatProgress(75, 2))
	assert.Equal(t, "0/50 XP to level 2", formatProgress(0, 1))
	assert.Equal(t, "49/50 XP to level 2", formatProgress(49, 1))
}

func TestFormatScoreboard(t *testing.T) {
	assert.Equal(
		t,
		"Nobody has earned anything here yet.",
		formatScoreboard("text", nil),
	)

	entries := []LeaderboardEntry{
		{UserID: "alice", Value: 200},
		{UserID: "bob", Value: 100},
	}
	got := formatScoreboard("voice_time", entries)
	assert.Contains(t, got, "**Leaderboard - voice time**")
	assert.Contains(t, got, "1. <@alice> - 200 min")
	assert.Contains(t, got, "2. <@bob> - 100 min")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No XP history yet.", formatHistory(nil))

	entries := []XPHistory{
		{Mode: "text", Amount: 5, CreatedAt: 1700000000000},
	}
	got := formatHistory(entries)
	assert.Contains(t, got, "+5 text XP")
	assert.Contains(t, got, fmt.Sprintf("<t:%d:R>", int64(1700000000)))
}
