package tasks

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/docuploader/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, seq, owner_id, target_folder, group_id, remote_path, original_file_name, stored_name,
	payload_name, payload_content_type, payload_mod_time, payload_size, payload, payload_checksum,
	bytes_transferred, total_bytes, state, pause_reason, last_error, retry_count, context,
	resume_token, reference, needs_routing, route_attempts,
	created_at, started_at, last_progress_at, completed_at`

func (r *SQLiteRepository) Insert(ctx context.Context, row *Row) error {
	query := `INSERT INTO upload_tasks (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.Seq, row.OwnerID, row.TargetFolder, row.GroupID, row.RemotePath, row.OriginalFileName, row.StoredName,
		row.PayloadName, row.PayloadContentType, row.PayloadModTime, row.PayloadSize, row.Payload, row.PayloadChecksum,
		row.BytesTransferred, row.TotalBytes, row.State, row.PauseReason, row.LastError, row.RetryCount, string(row.Context),
		row.ResumeToken, row.Reference, boolToInt(row.NeedsRouting), row.RouteAttempts,
		row.CreatedAt, row.StartedAt, row.LastProgressAt, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload task %s: %w", row.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM upload_tasks`)
	if err != nil {
		return fmt.Errorf("failed to clear upload tasks: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM upload_tasks ORDER BY seq, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select upload tasks: %w", err)
	}
	defer rows.Close()

	result := []*Row{}
	for rows.Next() {
		var (
			item         = &Row{}
			contextText  string
			needsRouting int
		)
		err := rows.Scan(
			&item.ID, &item.Seq, &item.OwnerID, &item.TargetFolder, &item.GroupID, &item.RemotePath, &item.OriginalFileName, &item.StoredName,
			&item.PayloadName, &item.PayloadContentType, &item.PayloadModTime, &item.PayloadSize, &item.Payload, &item.PayloadChecksum,
			&item.BytesTransferred, &item.TotalBytes, &item.State, &item.PauseReason, &item.LastError, &item.RetryCount, &contextText,
			&item.ResumeToken, &item.Reference, &needsRouting, &item.RouteAttempts,
			&item.CreatedAt, &item.StartedAt, &item.LastProgressAt, &item.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload task row: %w", err)
		}
		item.Context = []byte(contextText)
		item.NeedsRouting = needsRouting != 0
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload task rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count upload tasks: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
