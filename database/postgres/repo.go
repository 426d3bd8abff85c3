// Package postgres implements vaultbox.MetaDataRepo on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/vaultbox"
)

const selectColumns = `id, internal_id, owner_id, title, size, format, created_at, deleted_at, is_deleted`

type repo struct {
	pool *pgxpool.Pool
}

// NewRepo returns a MetaDataRepo backed by pool. The schema must already be migrated.
func NewRepo(pool *pgxpool.Pool) vaultbox.MetaDataRepo {
	return &repo{pool: pool}
}

func (r *repo) Create(ctx context.Context, f vaultbox.NewFile) (vaultbox.FileMetadata, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, internal_id, owner_id, title, size, format)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s
	`, tableName, selectColumns)

	m, err := scanFile(r.pool.QueryRow(ctx, query,
		uuid.New(), nullString(f.InternalID), f.OwnerID, f.Title, f.Size, nullString(f.Format),
	))
	if err != nil {
		return vaultbox.FileMetadata{}, fmt.Errorf("create: %w", err)
	}

	return m, nil
}

func (r *repo) GetByID(ctx context.Context, id uuid.UUID) (vaultbox.FileMetadata, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, tableName)

	m, err := scanFile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vaultbox.FileMetadata{}, vaultbox.ErrNotFound
		}
		return vaultbox.FileMetadata{}, fmt.Errorf("get by id: %w", err)
	}

	return m, nil
}

func (r *repo) List(ctx context.Context, q vaultbox.ListQuery) (vaultbox.ListResult, error) {
	var conditions []string
	var args []any

	if q.OwnerID != nil {
		args = append(args, *q.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if !q.ShowDeleted {
		conditions = append(conditions, "NOT is_deleted")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, tableName, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return vaultbox.ListResult{}, fmt.Errorf("list: count: %w", err)
	}

	pageArgs := append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM %s %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, selectColumns, tableName, where, len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return vaultbox.ListResult{}, fmt.Errorf("list: %w", err)
	}

	items, err := collectFiles(rows)
	if err != nil {
		return vaultbox.ListResult{}, fmt.Errorf("list: %w", err)
	}

	return vaultbox.ListResult{Items: items, Total: total}, nil
}

func (r *repo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET is_deleted = TRUE WHERE id = $1`, tableName)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("soft delete: %w", vaultbox.ErrNotFound)
	}

	return nil
}

func (r *repo) FinalizeDelete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = COALESCE(deleted_at, NOW())
		WHERE id = $1
	`, tableName)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("finalize delete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("finalize delete: %w", vaultbox.ErrNotFound)
	}

	return nil
}

func (r *repo) ListPendingPurge(ctx context.Context, limit int) ([]vaultbox.FileMetadata, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE is_deleted AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, selectColumns, tableName)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending purge: %w", err)
	}

	items, err := collectFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("list pending purge: %w", err)
	}

	return items, nil
}

func scanFile(row pgx.Row) (vaultbox.FileMetadata, error) {
	var m vaultbox.FileMetadata
	var internalID, format *string
	var deletedAt *time.Time

	err := row.Scan(
		&m.ID, &internalID, &m.OwnerID, &m.Title, &m.Size, &format, &m.CreatedAt, &deletedAt, &m.IsDeleted,
	)
	if err != nil {
		return vaultbox.FileMetadata{}, err
	}

	if internalID != nil {
		m.InternalID = *internalID
	}
	if format != nil {
		m.Format = *format
	}
	if deletedAt != nil {
		t := deletedAt.UTC()
		m.DeletedAt = &t
	}
	m.CreatedAt = m.CreatedAt.UTC()

	return m, nil
}

func collectFiles(rows pgx.Rows) ([]vaultbox.FileMetadata, error) {
	defer rows.Close()

	items := make([]vaultbox.FileMetadata, 0)
	for rows.Next() {
		m, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return items, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
