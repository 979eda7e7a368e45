package levelcord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendStartupMessage(t *testing.T) {
	lc, session := testLevelCord(t)
	ctx := context.Background()

	// only the second and third guilds have a channel configured; the
	// message goes to the first configured one and nowhere else
	require.NoError(t, lc.ledger.SetNotifyChannel(ctx, "guild2", "chan2"))
	require.NoError(t, lc.ledger.SetNotifyChannel(ctx, "guild3", "chan3"))

	lc.discord.sendStartupMessage(
		[]*discordgo.Guild{{ID: "guild1"}, {ID: "guild2"}, {ID: "guild3"}},
	)

	session.mu.Lock()
	sent := append([]mockChannelMessage(nil), session.sentMessages...)
	session.mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, "chan2", sent[0].ChannelID)
	assert.Equal(t, lc.discord.config.StartupMessage, sent[0].Content)
}

func TestSendStartupMessageNoChannelConfigured(t *testing.T) {
	lc, session := testLevelCord(t)

	lc.discord.sendStartupMessage([]*discordgo.Guild{{ID: "guild1"}})

	_, sent := session.lastMessage()
	assert.False(t, sent)
}
