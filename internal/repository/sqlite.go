package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

// OpenSQLite opens (and creates if needed) a sqlite database at dsn. Use
// ":memory:" for tests and local experiments.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.NewAppError("DB_CONNECT", "failed to open sqlite database", err)
	}
	// modernc sqlite is a single-writer engine; more connections just contend.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.NewAppError("DB_CONNECT", "sqlite ping failed", err)
	}
	logger.Info("db.sqlite.ready", "dsn", dsn)
	return db, nil
}

// InitSQLiteSchema creates the tables if they do not exist yet.
func InitSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			business_name TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT 'basic',
			extraction_profile TEXT NOT NULL DEFAULT 'basic',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_user_created
			ON receipts (user_id, created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return common.NewAppError("DB_SCHEMA", "sqlite schema init failed", err)
		}
	}
	return nil
}

type sqliteUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteUserRepository creates a UserRepository backed by sqlite.
func NewSQLiteUserRepository(db *sql.DB, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteUserRepository{db: db, logger: logger}
}

func (r *sqliteUserRepository) GetUser(ctx context.Context, userID string) (*User, error) {
	var (
		u       User
		profile string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, business_name, tier, extraction_profile FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.BusinessName, &u.Tier, &profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("USER_NOT_FOUND",
			fmt.Sprintf("user %q not found", userID), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to load user", err)
	}
	u.ExtractionProfile = constants.ProfileName(profile)
	if u.Tier == "" {
		u.Tier = constants.DefaultTier
	}
	return &u, nil
}

// SeedUser inserts or replaces a user row. Handy for local setups where no
// account system fronts this service.
func SeedUser(ctx context.Context, db *sql.DB, u User) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, business_name, tier, extraction_profile) VALUES (?, ?, ?, ?)`,
		u.ID, u.BusinessName, u.Tier, string(u.ExtractionProfile),
	)
	if err != nil {
		return common.NewAppError("DB_INSERT", "failed to seed user", err)
	}
	return nil
}

type sqliteReceiptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteReceiptRepository creates a ReceiptRepository backed by sqlite.
func NewSQLiteReceiptRepository(db *sql.DB, logger *slog.Logger) ReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteReceiptRepository{db: db, logger: logger}
}

func (r *sqliteReceiptRepository) SaveReceipt(ctx context.Context, userID string, doc extract.Record) (*StoredReceipt, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, common.NewAppError("DB_ENCODE", "failed to encode receipt document", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO receipts (id, user_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		id, userID, string(payload), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, common.NewAppError("DB_INSERT", "failed to save receipt", err)
	}

	r.logger.Info("repository.receipt.saved", "receipt_id", id, "user_id", userID)
	return &StoredReceipt{
		ID:        id,
		UserID:    userID,
		Document:  extract.Clone(doc),
		CreatedAt: now,
	}, nil
}

func (r *sqliteReceiptRepository) ListReceipts(ctx context.Context, userID string, from, to *time.Time) ([]StoredReceipt, error) {
	query := `SELECT id, user_id, payload, created_at FROM receipts WHERE user_id = ?`
	args := []any{userID}
	if from != nil {
		query += " AND created_at >= ?"
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if to != nil {
		query += " AND created_at <= ?"
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list receipts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredReceipt
	for rows.Next() {
		var (
			sr        StoredReceipt
			payload   string
			createdAt string
		)
		if err := rows.Scan(&sr.ID, &sr.UserID, &payload, &createdAt); err != nil {
			return nil, common.NewAppError("DB_SCAN", "failed to scan receipt row", err)
		}
		if err := json.Unmarshal([]byte(payload), &sr.Document); err != nil {
			return nil, common.NewAppError("DB_DECODE", "stored receipt payload is not valid json", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			sr.CreatedAt = ts
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_QUERY", "receipt row iteration failed", err)
	}
	return out, nil
}
