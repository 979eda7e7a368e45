package levelcord

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPIEngine(t testing.TB) (*gin.Engine, XPLedger) {
	t.Helper()
	ledger := testLedger(t)
	logger := slog.Default().With(loggerNameKey, "api")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware())

	handlers := &apiHandlers{ledger: ledger, logger: logger}
	r.GET(apiHealthCheck, handlers.healthCheck)
	r.GET(apiPathLeaderboard, handlers.getLeaderboard)
	r.GET(apiPathMemberXP, handlers.getMemberXP)
	return r, ledger
}

func apiGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestAPIHealthCheck(t *testing.T) {
	r, _ := testAPIEngine(t)

	w := apiGet(r, apiHealthCheck)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPIGetLeaderboard(t *testing.T) {
	r, ledger := testAPIEngine(t)
	ctx := context.Background()
	for userID, amount := range map[string]int64{"alice": 300, "bob": 100} {
		_, err := ledger.AddXP(ctx, userID, "guild1", amount, ModeText)
		require.NoError(t, err)
	}

	w := apiGet(r, "/api/guilds/guild1/leaderboard")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		GuildID string             `json:"guild_id"`
		Mode    string             `json:"mode"`
		Entries []LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "guild1", body.GuildID)
	assert.Equal(t, "text", body.Mode)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "alice", body.Entries[0].UserID)
	assert.Equal(t, int64(300), body.Entries[0].Value)

	w = apiGet(r, "/api/guilds/guild1/leaderboard?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 1)
}

func TestAPIGetLeaderboardBadRequests(t *testing.T) {
	r, _ := testAPIEngine(t)

	w := apiGet(r, "/api/guilds/guild1/leaderboard?mode=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var reply httpReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "unknown mode", reply.Message)

	for _, limit := range []string{"abc", "0", "-3"} {
		w = apiGet(r, "/api/guilds/guild1/leaderboard?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestAPIGetMemberXP(t *testing.T) {
	r, ledger := testAPIEngine(t)
	ctx := context.Background()
	_, err := ledger.AddXP(ctx, "user1", "guild1", 100, ModeText)
	require.NoError(t, err)
	_, err = ledger.AddXP(ctx, "user1", "guild1", 20, ModeVoice)
	require.NoError(t, err)
	require.NoError(t, ledger.AddMessage(ctx, "user1", "guild1"))
	require.NoError(t, ledger.AddVoiceTime(ctx, "user1", "guild1", 2))

	w := apiGet(r, "/api/guilds/guild1/members/user1/xp")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "guild1", body["guild_id"])
	assert.Equal(t, "user1", body["user_id"])
	assert.Equal(t, float64(100), body["text_xp"])
	assert.Equal(t, float64(2), body["text_level"])
	assert.Equal(t, float64(20), body["voice_xp"])
	assert.Equal(t, float64(1), body["voice_level"])
	assert.Equal(t, float64(1), body["messages"])
	assert.Equal(t, float64(2), body["voice_time"])
}

func TestAPIGetMemberXPUnknownMember(t *testing.T) {
	r, _ := testAPIEngine(t)

	w := apiGet(r, "/api/guilds/guild1/members/ghost/xp")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["text_xp"])
	assert.Equal(t, float64(1), body["text_level"])
	assert.Equal(t, float64(0), body["messages"])
}
