package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/common"
	"github.com/dmitrijs2005/docuploader/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Add stores n. Adding an id that already exists is a no-op so a retried
// routing pass cannot produce duplicate notices.
func (r *SQLiteRepository) Add(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, task_id, owner_id, file_name, reference, remote_path, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO NOTHING
	`, n.ID, n.TaskID, n.OwnerID, n.FileName, n.Reference, n.RemotePath, n.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to add notification[%s]: %w", n.ID, err)
	}
	return nil
}

// ListPending returns undelivered notices of ownerID, oldest first. An empty
// ownerID lists every owner.
func (r *SQLiteRepository) ListPending(ctx context.Context, ownerID string) ([]*models.Notification, error) {
	query := `SELECT id, task_id, owner_id, file_name, reference, remote_path, created_at
		FROM notifications WHERE delivered_at IS NULL`
	args := []any{}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	result := []*models.Notification{}
	for rows.Next() {
		var (
			n       = &models.Notification{}
			created int64
		)
		if err := rows.Scan(&n.ID, &n.TaskID, &n.OwnerID, &n.FileName, &n.Reference, &n.RemotePath, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		n.CreatedAt = time.Unix(0, created).UTC()
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification[%s] delivered: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return common.ErrorNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get notification[%s]: %w", id, err)
		}
	}
	return nil
}

// DeleteDelivered purges notices delivered before the given time and returns
// how many were removed.
func (r *SQLiteRepository) DeleteDelivered(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE delivered_at IS NOT NULL AND delivered_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete delivered notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
