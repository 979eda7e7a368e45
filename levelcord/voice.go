package levelcord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// VoiceTracker records which users are currently in a voice channel,
// keyed by user ID with the guild ID as the value. It is purely
// in-memory: presence that predates process start is unknown until the
// user produces a new voice state event, and nothing is persisted.
type VoiceTracker struct {
	mu      sync.Mutex
	members map[string]string
}

func NewVoiceTracker() *VoiceTracker {
	return &VoiceTracker{members: map[string]string{}}
}

// Track marks the user as present in a voice channel of the guild.
// A user moving between channels (or guilds) just overwrites the entry.
func (v *VoiceTracker) Track(userID string, guildID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.members[userID] = guildID
}

// Untrack removes the user. Safe to call for users never tracked.
func (v *VoiceTracker) Untrack(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.members, userID)
}

// Snapshot returns a copy of the current membership, so accrual can
// iterate without holding the lock across database writes.
func (v *VoiceTracker) Snapshot() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	members := make(map[string]string, len(v.members))
	for userID, guildID := range v.members {
		members[userID] = guildID
	}
	return members
}

func (v *VoiceTracker) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.members)
}

// runVoiceAccrual credits tracked users once per tick until ctx is
// canceled. Each tick grants voice XP and one minute of voice time per
// user still present at tick time; partial intervals earn nothing.
func (lc *LevelCord) runVoiceAccrual(ctx context.Context) error {
	interval := lc.config.XP.VoiceTickInterval
	if interval <= 0 {
		interval = DefaultVoiceTickInterval
	}
	log := lc.logger.With(loggerNameKey, "voice_accrual")
	log.InfoContext(ctx, "starting voice accrual", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "stopping voice accrual")
			return ctx.Err()
		case <-ticker.C:
			lc.accrueVoiceTick(ctx, log)
		}
	}
}

// accrueVoiceTick credits every currently tracked user. A failure for
// one user is logged and skipped so the rest of the snapshot still
// accrues.
func (lc *LevelCord) accrueVoiceTick(ctx context.Context, log *slog.Logger) {
	members := lc.tracker.Snapshot()
	if len(members) == 0 {
		return
	}
	log.DebugContext(ctx, "voice accrual tick", "tracked", len(members))

	for userID, guildID := range members {
		newLevel, err := lc.ledger.AddXP(
			ctx, userID, guildID, lc.config.XP.VoiceXP, ModeVoice,
		)
		if err != nil {
			log.ErrorContext(
				ctx,
				"error granting voice xp",
				tint.Err(err),
				"user_id", userID,
				"guild_id", guildID,
			)
			continue
		}
		if err = lc.ledger.AddVoiceTime(ctx, userID, guildID, 1); err != nil {
			log.ErrorContext(
				ctx,
				"error crediting voice time",
				tint.Err(err),
				"user_id", userID,
				"guild_id", guildID,
			)
		}
		if err = lc.ledger.LogHistory(
			ctx, userID, guildID, ModeVoice, lc.config.XP.VoiceXP,
		); err != nil {
			log.ErrorContext(
				ctx,
				"error logging voice history",
				tint.Err(err),
				"user_id", userID,
				"guild_id", guildID,
			)
		}
		if newLevel > 0 {
			lc.announceLevelUp(ctx, userID, guildID, ModeVoice, newLevel)
			lc.grantLevelRole(ctx, userID, guildID, newLevel)
		}
	}
}
