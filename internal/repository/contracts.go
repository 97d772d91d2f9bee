package repository

import (
	"context"
	"time"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

// User is the account a receipt is filed under. Tier and ExtractionProfile
// drive which parsing profile the pipeline runs.
type User struct {
	ID                string
	BusinessName      string
	Tier              string
	ExtractionProfile constants.ProfileName
}

// StoredReceipt is one persisted extraction document.
type StoredReceipt struct {
	ID        string
	UserID    string
	Document  extract.Record
	CreatedAt time.Time
}

// UserRepository resolves submitters by their external identifier.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// ReceiptRepository persists and lists extraction documents.
type ReceiptRepository interface {
	SaveReceipt(ctx context.Context, userID string, doc extract.Record) (*StoredReceipt, error)
	// ListReceipts returns the user's receipts newest first; from/to are
	// optional inclusive bounds on created_at.
	ListReceipts(ctx context.Context, userID string, from, to *time.Time) ([]StoredReceipt, error)
}
