package levelcord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// gormDB creates a temporary SQLite database for testing purposes.
func gormDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", filepath.Base(t.Name())))

	db, err := CreateDB(context.Background(), "sqlite", dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

// testLedger returns an XPLedger over a fresh temp sqlite database.
func testLedger(t testing.TB) XPLedger {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", filepath.Base(t.Name())))

	db, err := CreateDB(context.Background(), "sqlite", dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				_ = sqlDB.Close()
			}
		},
	)
	logger := slog.Default().With("test", t.Name())
	writeDB := newDatabaseWrapper(db, false, logger)
	return NewXPLedger(writeDB, dbTypeSQLite, dbfile, logger)
}

// mockDiscordSession implements DiscordSessionHandler, recording the
// messages sent through it.
type mockDiscordSession struct {
	mu           sync.Mutex
	sentMessages []mockChannelMessage
	grantedRoles []mockRoleGrant
	responses    []*discordgo.InteractionResponse
}

type mockChannelMessage struct {
	ChannelID string
	Content   string
}

type mockRoleGrant struct {
	GuildID string
	UserID  string
	RoleID  string
}

func (m *mockDiscordSession) Open() error  { return nil }
func (m *mockDiscordSession) Close() error { return nil }

func (m *mockDiscordSession) AddHandler(any) func() {
	return func() {}
}

func (m *mockDiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(
		m.sentMessages,
		mockChannelMessage{ChannelID: channelID, Content: message},
	)
	return &discordgo.Message{ChannelID: channelID, Content: message}, nil
}

func (m *mockDiscordSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return commands, nil
}

func (m *mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockDiscordSession) InteractionResponseEdit(
	_ *discordgo.Interaction,
	_ *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (m *mockDiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantedRoles = append(
		m.grantedRoles,
		mockRoleGrant{GuildID: guildID, UserID: userID, RoleID: roleID},
	)
	return nil
}

func (m *mockDiscordSession) UpdateCustomStatus(string) error { return nil }
func (m *mockDiscordSession) SetHTTPClient(*http.Client)      {}
func (m *mockDiscordSession) SetLogLevel(slog.Level) error    { return nil }
func (m *mockDiscordSession) GatewayBot(...discordgo.RequestOption) (
	*discordgo.GatewayBotResponse,
	error,
) {
	return &discordgo.GatewayBotResponse{}, nil
}

func (m *mockDiscordSession) lastMessage() (mockChannelMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sentMessages) == 0 {
		return mockChannelMessage{}, false
	}
	return m.sentMessages[len(m.sentMessages)-1], true
}

// testLevelCord builds a LevelCord wired to a temp database and a mock
// discord session. The gateway is never opened.
func testLevelCord(t testing.TB) (*LevelCord, *mockDiscordSession) {
	t.Helper()

	config := DefaultConfig()
	config.Discord.Token = "test-token"
	config.Discord.ApplicationID = "test-app"

	logger := slog.Default().With("test", t.Name())
	session := &mockDiscordSession{}

	lc := &LevelCord{
		config:          config,
		logger:          logger,
		tracker:         NewVoiceTracker(),
		lastCounted:     map[string]time.Time{},
		announceLimiter: rate.NewLimiter(rate.Inf, 1),
		ledger:          testLedger(t),
	}
	lc.discord = &Discord{
		session: session,
		config:  config.Discord,
		logger:  logger,
		lc:      lc,
	}
	return lc, session
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "", truncate("", 5))
}

func TestGenerateRandomHexString(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		s, err := generateRandomHexString(32)
		assert.NoError(t, err)
		assert.Len(t, s, 32)
		assert.False(t, seen[s], "expected unique values")
		seen[s] = true
	}
}
