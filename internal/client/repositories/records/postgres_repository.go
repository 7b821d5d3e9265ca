package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/dmitrijs2005/docuploader/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Article(ctx context.Context, id string) (*models.Article, error) {
	query :=
		`SELECT id, fields, attachments, is_draft FROM articles
		 WHERE id = $1
		 `

	var (
		a           = &models.Article{}
		fields      []byte
		attachments []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &fields, &attachments, &a.Draft)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &a.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode article fields: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &a.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode article attachments: %w", err)
		}
	}
	if a.Fields == nil {
		a.Fields = map[string]string{}
	}

	return a, nil
}

func (r *PostgresRepository) SaveArticle(ctx context.Context, a *models.Article) error {
	fields, err := json.Marshal(a.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode article fields: %w", err)
	}
	attachments := a.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	attJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("failed to encode article attachments: %w", err)
	}

	query :=
		`UPDATE articles SET fields = $2, attachments = $3, is_draft = $4, updated_at = NOW()
		 WHERE id = $1
		 `

	result, err := r.db.ExecContext(ctx, query, a.ID, fields, attJSON, a.Draft)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

func (r *PostgresRepository) User(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, COALESCE(picture_ref, '') FROM users
		 WHERE id = $1
		 `

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.PictureRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) SaveUser(ctx context.Context, u *models.User) error {
	query :=
		`UPDATE users SET picture_ref = $2, updated_at = NOW()
		 WHERE id = $1
		 `

	result, err := r.db.ExecContext(ctx, query, u.ID, u.PictureRef)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
