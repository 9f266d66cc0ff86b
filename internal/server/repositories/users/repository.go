// Package users persists identity records.
package users

import (
	"context"

	"github.com/dmitrijs2005/identity/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}
