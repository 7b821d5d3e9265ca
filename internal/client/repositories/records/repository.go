// Package records reads and updates the portal records that completed
// uploads are attached to. The portal owns the schema; this package only
// touches the columns the completion router needs.
package records

import (
	"context"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
)

type Repository interface {
	Article(ctx context.Context, id string) (*models.Article, error)
	SaveArticle(ctx context.Context, a *models.Article) error
	User(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}
