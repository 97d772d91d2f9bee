package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open builds a pgx pool from the database config and verifies connectivity.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.NewAppError("DB_CONFIG", "invalid database url", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.DialTimeout
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "receipts-backend"
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, common.NewAppError("DB_CONNECT", "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, common.NewAppError("DB_CONNECT", "database ping failed", err)
	}

	logger.Info("db.pool.ready", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// HealthCheck runs a trivial query against the pool.
func HealthCheck(ctx context.Context, db DB) error {
	var one int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return common.WrapError(common.ErrDatabase, "health check failed: "+err.Error())
	}
	return nil
}

// InitSchema creates the tables if they do not exist yet. Kept as plain DDL so
// a fresh database works without a migration step.
func InitSchema(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			business_name TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT 'basic',
			extraction_profile TEXT NOT NULL DEFAULT 'basic',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_user_created
			ON receipts (user_id, created_at DESC)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(ctx, s); err != nil {
			return common.NewAppError("DB_SCHEMA", "schema init failed", err)
		}
	}
	return nil
}

type postgresUserRepository struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a UserRepository backed by postgres.
func NewPostgresUserRepository(db DB, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresUserRepository{db: db, logger: logger}
}

func (r *postgresUserRepository) GetUser(ctx context.Context, userID string) (*User, error) {
	var (
		u       User
		profile string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, business_name, tier, extraction_profile FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.BusinessName, &u.Tier, &profile)
	if errors.Is(err, pgx.ErrNoRows) {
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

type postgresReceiptRepository struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresReceiptRepository creates a ReceiptRepository backed by postgres.
func NewPostgresReceiptRepository(db DB, logger *slog.Logger) ReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresReceiptRepository{db: db, logger: logger}
}

func (r *postgresReceiptRepository) SaveReceipt(ctx context.Context, userID string, doc extract.Record) (*StoredReceipt, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, common.NewAppError("DB_ENCODE", "failed to encode receipt document", err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = r.db.Exec(ctx,
		`INSERT INTO receipts (id, user_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		id, userID, payload, now,
	)
	if err != nil {
		return nil, common.NewAppError("DB_INSERT", "failed to save receipt", err)
	}

	r.logger.Info("repository.receipt.saved", "receipt_id", id.String(), "user_id", userID)
	return &StoredReceipt{
		ID:        id.String(),
		UserID:    userID,
		Document:  extract.Clone(doc),
		CreatedAt: now,
	}, nil
}

func (r *postgresReceiptRepository) ListReceipts(ctx context.Context, userID string, from, to *time.Time) ([]StoredReceipt, error) {
	query := `SELECT id, user_id, payload, created_at FROM receipts WHERE user_id = $1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list receipts", err)
	}
	defer rows.Close()

	var out []StoredReceipt
	for rows.Next() {
		var (
			sr      StoredReceipt
			payload []byte
		)
		if err := rows.Scan(&sr.ID, &sr.UserID, &payload, &sr.CreatedAt); err != nil {
			return nil, common.NewAppError("DB_SCAN", "failed to scan receipt row", err)
		}
		if err := json.Unmarshal(payload, &sr.Document); err != nil {
			return nil, common.NewAppError("DB_DECODE", "stored receipt payload is not valid json", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_QUERY", "receipt row iteration failed", err)
	}
	return out, nil
}
