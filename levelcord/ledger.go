package levelcord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// XPMode selects which XP counter an operation applies to.
type XPMode string

const (
	ModeText  XPMode = "text"
	ModeVoice XPMode = "voice"
)

var (
	// ErrUnknownMode indicates an XP or leaderboard mode outside the
	// known set. Reported to users as a rejection, never a failure.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrInvalidAmount indicates a non-positive XP grant
	ErrInvalidAmount = errors.New("xp amount must be positive")

	// ErrBackupUnsupported indicates the backing store has no
	// file-snapshot mechanism (postgres)
	ErrBackupUnsupported = errors.New("backup requires a sqlite database")
)

var (
	columnTextXP     = "text_xp"
	columnVoiceXP    = "voice_xp"
	columnMessages   = "messages"
	columnVoiceTime  = "voice_time"
	columnTextLevel  = "text_level"
	columnVoiceLevel = "voice_level"
)

// leaderboardColumns whitelists the sortable counters, keyed by the
// mode names users pass to /scoreboard and /rank.
var leaderboardColumns = map[string]string{
	"text":       columnTextXP,
	"voice":      columnVoiceXP,
	"messages":   columnMessages,
	"voice_time": columnVoiceTime,
}

func (m XPMode) valid() bool {
	return m == ModeText || m == ModeVoice
}

// columns returns the XP counter column and the derived level column
// for the mode.
func (m XPMode) columns() (xpColumn string, levelColumn string, err error) {
	switch m {
	case ModeText:
		return columnTextXP, columnTextLevel, nil
	case ModeVoice:
		return columnVoiceXP, columnVoiceLevel, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownMode, string(m))
	}
}

// LevelForXP derives a level from a cumulative XP total: level L
// requires at least 50*(L-1)^2 XP, so level 1 is always satisfied and
// level 2 starts at exactly 50.
//
// Always computed from the full total, never incrementally - XP can
// arrive in arbitrary-size chunks and may cross several thresholds in
// a single grant.
func LevelForXP(xp int64) int {
	level := 1
	for xp >= 50*int64(level)*int64(level) {
		level++
	}
	return level
}

// XPRecord holds the per-(user, guild) counters. The level columns are
// always LevelForXP of the corresponding counter after every write.
//
// There is intentionally no soft-delete column: the composite primary
// key is reused by the upsert path after a reset, and a tombstoned row
// would collide with it.
//
//nolint:lll // struct tags can't be split
type XPRecord struct {
	UserID        string `json:"user_id" gorm:"primaryKey;type:string"`
	GuildID       string `json:"guild_id" gorm:"primaryKey;type:string"`
	TextXP        int64  `json:"text_xp" gorm:"not null;default:0"`
	VoiceXP       int64  `json:"voice_xp" gorm:"not null;default:0"`
	Messages      int64  `json:"messages" gorm:"not null;default:0"`
	VoiceTime     int64  `json:"voice_time" gorm:"not null;default:0"`
	TextLevel     int    `json:"text_level" gorm:"not null;default:1"`
	VoiceLevel    int    `json:"voice_level" gorm:"not null;default:1"`
	NotifyEnabled bool   `json:"notify_enabled" gorm:"not null;default:true"`
	CreatedAt     int64  `json:"created_at,omitempty" gorm:"autoCreateTime:milli"`
	UpdatedAt     int64  `json:"updated_at,omitempty" gorm:"autoUpdateTime:milli"`
}

func (r XPRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", r.UserID),
		slog.String("guild_id", r.GuildID),
		slog.Int64(columnTextXP, r.TextXP),
		slog.Int64(columnVoiceXP, r.VoiceXP),
		slog.Int(columnTextLevel, r.TextLevel),
		slog.Int(columnVoiceLevel, r.VoiceLevel),
	)
}

// newXPRecord returns a record with the lazily-created defaults: level 1
// in both modes, notifications on.
func newXPRecord(userID string, guildID string) XPRecord {
	return XPRecord{
		UserID:        userID,
		GuildID:       guildID,
		TextLevel:     1,
		VoiceLevel:    1,
		NotifyEnabled: true,
	}
}

// GuildConfig holds per-guild settings, created lazily on first write.
//
//nolint:lll // struct tags can't be split
type GuildConfig struct {
	GuildID         string `json:"guild_id" gorm:"primaryKey;type:string"`
	Cooldown        int    `json:"cooldown" gorm:"not null;default:30"`
	NotifyChannelID string `json:"notify_channel_id" gorm:"type:string"`
	CreatedAt       int64  `json:"created_at,omitempty" gorm:"autoCreateTime:milli"`
	UpdatedAt       int64  `json:"updated_at,omitempty" gorm:"autoUpdateTime:milli"`
}

// XPHistory is an append-only log of XP grants. Rows are never updated,
// and survive a user reset (the audit trail outlives the counters).
type XPHistory struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	UserID    string `json:"user_id" gorm:"index:idx_xp_history_user;type:string"`
	GuildID   string `json:"guild_id" gorm:"index:idx_xp_history_user;type:string"`
	Mode      string `json:"mode" gorm:"type:string"`
	Amount    int64  `json:"amount"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

// LeaderboardEntry is one row of a guild leaderboard: a user and their
// value for the requested counter.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}

// XPLedger is the durable store of leveling state. All reads default
// rather than fail when a record is absent: 0 XP, level 1, 30s cooldown,
// notifications enabled, no notify channel.
//
// Increment operations are atomic against the backing store - the
// counter update happens in SQL, never as a caller-side
// read-modify-write - so concurrent grants to the same (user, guild)
// key can't lose updates.
type XPLedger interface {
	// AddXP grants amount XP in the given mode and recomputes the level
	// from the new total. Returns the new level only if it increased,
	// 0 otherwise. A grant crossing several thresholds reports only the
	// final level.
	AddXP(ctx context.Context, userID, guildID string, amount int64, mode XPMode) (int, error)

	// AddMessage increments the message counter. Cooldown gating is the
	// caller's concern, not the ledger's.
	AddMessage(ctx context.Context, userID, guildID string) error

	// AddVoiceTime credits minutes of tracked voice presence.
	AddVoiceTime(ctx context.Context, userID, guildID string, minutes int64) error

	XP(ctx context.Context, userID, guildID string, mode XPMode) (int64, error)
	Level(ctx context.Context, userID, guildID string, mode XPMode) (int, error)
	Messages(ctx context.Context, userID, guildID string) (int64, error)
	VoiceTime(ctx context.Context, userID, guildID string) (int64, error)

	// Leaderboard returns up to limit entries for the guild, descending
	// by the requested counter (text|voice|messages|voice_time), ties
	// broken by user ID for a stable order. limit <= 0 uses the default.
	Leaderboard(ctx context.Context, guildID, mode string, limit int) ([]LeaderboardEntry, error)

	// Rank returns the user's 1-based position in the guild ordering
	// for the given leaderboard mode. Tied users share a rank.
	Rank(ctx context.Context, userID, guildID, mode string) (int, error)

	SetCooldown(ctx context.Context, guildID string, seconds int) error
	Cooldown(ctx context.Context, guildID string) (int, error)
	SetNotifyChannel(ctx context.Context, guildID, channelID string) error
	NotifyChannel(ctx context.Context, guildID string) (string, error)
	SetNotifyEnabled(ctx context.Context, userID, guildID string, enabled bool) error
	NotifyEnabled(ctx context.Context, userID, guildID string) (bool, error)

	// ResetUser deletes the XPRecord for the key. History entries are
	// kept.
	ResetUser(ctx context.Context, userID, guildID string) error

	LogHistory(ctx context.Context, userID, guildID string, mode XPMode, amount int64) error

	// History returns grant events for the user, newest first. An empty
	// mode returns both modes. limit <= 0 uses the default.
	History(ctx context.Context, userID, guildID string, mode XPMode, limit int) ([]XPHistory, error)

	// Backup writes a consistent whole-store snapshot to dest.
	Backup(ctx context.Context, dest string) error

	// ImportDump replaces the live store contents with those of a
	// previously produced snapshot.
	ImportDump(ctx context.Context, src string) error
}

// gormLedger is the reference XPLedger implementation, backed by a
// *database wrapper (serialized writes on sqlite).
type gormLedger struct {
	db     *database
	dbType string
	dbPath string
	logger *slog.Logger
}

// NewXPLedger returns an XPLedger backed by the given database wrapper.
// dbPath is the sqlite file path, used for snapshots; empty for postgres.
func NewXPLedger(
	db *database,
	dbType string,
	dbPath string,
	log *slog.Logger,
) XPLedger {
	if log == nil {
		log = slog.Default()
	}
	return &gormLedger{
		db:     db,
		dbType: dbType,
		dbPath: dbPath,
		logger: log.With(loggerNameKey, "xp_ledger"),
	}
}

func (l *gormLedger) AddXP(
	ctx context.Context,
	userID string,
	guildID string,
	amount int64,
	mode XPMode,
) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	xpColumn, levelColumn, err := mode.columns()
	if err != nil {
		return 0, err
	}

	var levelUpTo int
	err = l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			rec := newXPRecord(userID, guildID)
			switch mode {
			case ModeText:
				rec.TextXP = amount
			case ModeVoice:
				rec.VoiceXP = amount
			}

			// Additive upsert: the increment happens in SQL so
			// overlapping callers can't overwrite each other with
			// stale totals.
			if createErr := tx.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{
						{Name: "user_id"},
						{Name: "guild_id"},
					},
					DoUpdates: clause.Assignments(
						map[string]any{
							xpColumn: gorm.Expr(
								fmt.Sprintf("%s + ?", xpColumn), amount,
							),
						},
					),
				},
			).Create(&rec).Error; createErr != nil {
				return createErr
			}

			var row XPRecord
			if readErr := tx.Where(
				"user_id = ? AND guild_id = ?", userID, guildID,
			).Take(&row).Error; readErr != nil {
				return readErr
			}

			total := row.TextXP
			storedLevel := row.TextLevel
			if mode == ModeVoice {
				total = row.VoiceXP
				storedLevel = row.VoiceLevel
			}

			newLevel := LevelForXP(total)
			if newLevel != storedLevel {
				if updErr := tx.Model(&XPRecord{}).Where(
					"user_id = ? AND guild_id = ?", userID, guildID,
				).Update(levelColumn, newLevel).Error; updErr != nil {
					return updErr
				}
			}
			if newLevel > storedLevel {
				levelUpTo = newLevel
			}
			return nil
		},
	)
	if err != nil {
		return 0, fmt.Errorf("error granting xp: %w", err)
	}
	return levelUpTo, nil
}

// incrementColumn upserts a single additive counter for the key.
func (l *gormLedger) incrementColumn(
	ctx context.Context,
	rec XPRecord,
	column string,
	amount int64,
) error {
	return l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			return tx.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{
						{Name: "user_id"},
						{Name: "guild_id"},
					},
					DoUpdates: clause.Assignments(
						map[string]any{
							column: gorm.Expr(
								fmt.Sprintf("%s + ?", column), amount,
							),
						},
					),
				},
			).Create(&rec).Error
		},
	)
}

func (l *gormLedger) AddMessage(
	ctx context.Context,
	userID string,
	guildID string,
) error {
	rec := newXPRecord(userID, guildID)
	rec.Messages = 1
	return l.incrementColumn(ctx, rec, columnMessages, 1)
}

func (l *gormLedger) AddVoiceTime(
	ctx context.Context,
	userID string,
	guildID string,
	minutes int64,
) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, minutes)
	}
	rec := newXPRecord(userID, guildID)
	rec.VoiceTime = minutes
	return l.incrementColumn(ctx, rec, columnVoiceTime, minutes)
}

// record fetches the XPRecord for the key, returning a defaulted
// record (and found=false) when none exists.
func (l *gormLedger) record(
	ctx context.Context,
	userID string,
	guildID string,
) (XPRecord, bool, error) {
	var row XPRecord
	err := l.db.DB().WithContext(ctx).Where(
		"user_id = ? AND guild_id = ?", userID, guildID,
	).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newXPRecord(userID, guildID), false, nil
		}
		return row, false, err
	}
	return row, true, nil
}

func (l *gormLedger) XP(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
) (int64, error) {
	if !mode.valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return 0, err
	}
	if mode == ModeVoice {
		return row.VoiceXP, nil
	}
	return row.TextXP, nil
}

func (l *gormLedger) Level(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
) (int, error) {
	if !mode.valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return 0, err
	}
	if mode == ModeVoice {
		return row.VoiceLevel, nil
	}
	return row.TextLevel, nil
}

func (l *gormLedger) Messages(
	ctx context.Context,
	userID string,
	guildID string,
) (int64, error) {
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return 0, err
	}
	return row.Messages, nil
}

func (l *gormLedger) VoiceTime(
	ctx context.Context,
	userID string,
	guildID string,
) (int64, error) {
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return 0, err
	}
	return row.VoiceTime, nil
}

func (l *gormLedger) Leaderboard(
	ctx context.Context,
	guildID string,
	mode string,
	limit int,
) ([]LeaderboardEntry, error) {
	column, ok := leaderboardColumns[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	var entries []LeaderboardEntry
	err := l.db.DB().WithContext(ctx).Model(&XPRecord{}).
		Select(fmt.Sprintf("user_id, %s as value", column)).
		Where("guild_id = ?", guildID).
		Order(fmt.Sprintf("%s DESC, user_id ASC", column)).
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("error reading leaderboard: %w", err)
	}
	return entries, nil
}

func (l *gormLedger) Rank(
	ctx context.Context,
	userID string,
	guildID string,
	mode string,
) (int, error) {
	column, ok := leaderboardColumns[mode]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return 0, err
	}
	value := row.TextXP
	switch column {
	case columnVoiceXP:
		value = row.VoiceXP
	case columnMessages:
		value = row.Messages
	case columnVoiceTime:
		value = row.VoiceTime
	}

	var ahead int64
	err = l.db.DB().WithContext(ctx).Model(&XPRecord{}).Where(
		fmt.Sprintf("guild_id = ? AND %s > ?", column), guildID, value,
	).Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("error computing rank: %w", err)
	}
	return int(ahead) + 1, nil
}

func (l *gormLedger) SetCooldown(
	ctx context.Context,
	guildID string,
	seconds int,
) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: cooldown %d", ErrInvalidAmount, seconds)
	}
	return l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			return tx.Clauses(
				clause.OnConflict{
					Columns:   []clause.Column{{Name: "guild_id"}},
					DoUpdates: clause.Assignments(map[string]any{"cooldown": seconds}),
				},
			).Create(&GuildConfig{GuildID: guildID, Cooldown: seconds}).Error
		},
	)
}

func (l *gormLedger) Cooldown(
	ctx context.Context,
	guildID string,
) (int, error) {
	var cfg GuildConfig
	err := l.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Take(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultCooldownSeconds, nil
		}
		return 0, err
	}
	return cfg.Cooldown, nil
}

func (l *gormLedger) SetNotifyChannel(
	ctx context.Context,
	guildID string,
	channelID string,
) error {
	return l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			return tx.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "guild_id"}},
					DoUpdates: clause.Assignments(
						map[string]any{"notify_channel_id": channelID},
					),
				},
			).Create(
				&GuildConfig{
					GuildID:         guildID,
					Cooldown:        DefaultCooldownSeconds,
					NotifyChannelID: channelID,
				},
			).Error
		},
	)
}

func (l *gormLedger) NotifyChannel(
	ctx context.Context,
	guildID string,
) (string, error) {
	var cfg GuildConfig
	err := l.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Take(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return cfg.NotifyChannelID, nil
}

func (l *gormLedger) SetNotifyEnabled(
	ctx context.Context,
	userID string,
	guildID string,
	enabled bool,
) error {
	rec := newXPRecord(userID, guildID)
	rec.NotifyEnabled = enabled
	return l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			// Select("*") forces notify_enabled into the insert even
			// when false; otherwise gorm omits the zero value because
			// of the column's default tag and the database default
			// (true) wins on a fresh row.
			return tx.Select("*").Clauses(
				clause.OnConflict{
					Columns: []clause.Column{
						{Name: "user_id"},
						{Name: "guild_id"},
					},
					DoUpdates: clause.Assignments(
						map[string]any{"notify_enabled": enabled},
					),
				},
			).Create(&rec).Error
		},
	)
}

func (l *gormLedger) NotifyEnabled(
	ctx context.Context,
	userID string,
	guildID string,
) (bool, error) {
	row, _, err := l.record(ctx, userID, guildID)
	if err != nil {
		return false, err
	}
	return row.NotifyEnabled, nil
}

func (l *gormLedger) ResetUser(
	ctx context.Context,
	userID string,
	guildID string,
) error {
	rows, err := l.db.Delete(
		ctx,
		&XPRecord{},
		"user_id = ? AND guild_id = ?", userID, guildID,
	)
	if err != nil {
		return fmt.Errorf("error resetting user: %w", err)
	}
	l.logger.InfoContext(
		ctx,
		"reset user xp",
		"user_id", userID,
		"guild_id", guildID,
		"rows", rows,
	)
	return nil
}

func (l *gormLedger) LogHistory(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
	amount int64,
) error {
	if !mode.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}
	_, err := l.db.Create(
		ctx, &XPHistory{
			UserID:  userID,
			GuildID: guildID,
			Mode:    string(mode),
			Amount:  amount,
		},
	)
	return err
}

func (l *gormLedger) History(
	ctx context.Context,
	userID string,
	guildID string,
	mode XPMode,
	limit int,
) ([]XPHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := l.db.DB().WithContext(ctx).Where(
		"user_id = ? AND guild_id = ?", userID, guildID,
	)
	if mode != "" {
		if !mode.valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
		}
		q = q.Where("mode = ?", string(mode))
	}
	var entries []XPHistory
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}
	return entries, nil
}

// Backup snapshots the sqlite store to dest via VACUUM INTO, which
// produces a consistent copy even with the connection open. Holds the
// write lock so no increment lands mid-copy.
func (l *gormLedger) Backup(ctx context.Context, dest string) error {
	if l.dbType != dbTypeSQLite {
		return ErrBackupUnsupported
	}
	if dir := filepath.Dir(dest); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating backup dir: %w", err)
		}
	}
	// VACUUM INTO fails if the target exists
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup target already exists: %s", dest)
	}
	if err := l.db.Exec(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("error creating backup: %w", err)
	}
	l.logger.InfoContext(ctx, "created backup", "dest", dest)
	return nil
}

// BackupFilename returns a timestamped snapshot name under dir.
func BackupFilename(dir string, at time.Time) string {
	return filepath.Join(
		dir,
		fmt.Sprintf("levelcord-%s.sqlite3", at.UTC().Format("20060102-150405")),
	)
}

// ImportDump replaces the live tables with the contents of a snapshot
// file. The dump is read through its own sqlite connection rather than
// copied over the open database file; the swap itself is a single
// transaction holding the write lock, so readers never observe a
// half-imported store.
func (l *gormLedger) ImportDump(ctx context.Context, src string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("error reading dump: %w", err)
	}
	dump, err := gorm.Open(
		sqlite.Open(src), &gorm.Config{
			Logger: newGORMLogger(
				slog.Default().Handler(), DefaultDatabaseSlowThreshold,
			),
		},
	)
	if err != nil {
		return fmt.Errorf("error opening dump: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := dump.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	var records []XPRecord
	var configs []GuildConfig
	var history []XPHistory
	if err = dump.WithContext(ctx).Find(&records).Error; err != nil {
		return fmt.Errorf("error reading dump records: %w", err)
	}
	if err = dump.WithContext(ctx).Find(&configs).Error; err != nil {
		return fmt.Errorf("error reading dump configs: %w", err)
	}
	if err = dump.WithContext(ctx).Find(&history).Error; err != nil {
		return fmt.Errorf("error reading dump history: %w", err)
	}

	err = l.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			for _, table := range []string{
				"xp_histories", "guild_configs", "xp_records",
			} {
				if execErr := tx.Exec(
					fmt.Sprintf("DELETE FROM %s", table),
				).Error; execErr != nil {
					return execErr
				}
			}
			if len(records) > 0 {
				if createErr := tx.CreateInBatches(&records, 500).Error; createErr != nil {
					return createErr
				}
			}
			if len(configs) > 0 {
				if createErr := tx.CreateInBatches(&configs, 500).Error; createErr != nil {
					return createErr
				}
			}
			if len(history) > 0 {
				if createErr := tx.CreateInBatches(&history, 500).Error; createErr != nil {
					return createErr
				}
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("error importing dump: %w", err)
	}
	l.logger.InfoContext(
		ctx,
		"imported dump",
		"src", src,
		"records", len(records),
		"configs", len(configs),
		"history", len(history),
	)
	return nil
}
