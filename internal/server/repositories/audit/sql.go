package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/identity/internal/dbx"
	"github.com/dmitrijs2005/identity/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// Insert writes one entry. An empty UserID is stored as NULL.
func (r *SQLRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, user_id, event_type, success, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	userID := sql.NullString{String: entry.UserID, Valid: entry.UserID != ""}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, userID, string(entry.EventType), entry.Success, entry.IPAddress, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
