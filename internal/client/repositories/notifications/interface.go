package notifications

import (
	"context"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
)

type Repository interface {
	Add(ctx context.Context, n *models.Notification) error
	ListPending(ctx context.Context, ownerID string) ([]*models.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	DeleteDelivered(ctx context.Context, before time.Time) (int64, error)
}
