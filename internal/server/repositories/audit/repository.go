// Package audit appends authentication events to the audit_log table.
package audit

import (
	"context"

	"github.com/dmitrijs2005/identity/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}
