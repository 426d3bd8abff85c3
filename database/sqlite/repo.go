// Package sqlite implements vaultbox.MetaDataRepo on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/vaultbox"
)

// timeFormat is fixed width so text comparison orders timestamps correctly.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, internal_id, owner_id, title, size, format, created_at, deleted_at, is_deleted`

type repo struct {
	db *sql.DB
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

func (r *repo) Create(ctx context.Context, f vaultbox.NewFile) (vaultbox.FileMetadata, error) {
	id := uuid.New()
	query := fmt.Sprintf( //nolint:gosec // G201: table name is a constant
		`INSERT INTO %s (id, internal_id, owner_id, title, size, format, created_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`, tableName)

	var owner any
	if f.OwnerID != nil {
		owner = f.OwnerID.String()
	}

	_, err := r.db.ExecContext(ctx, query,
		id.String(), nullString(f.InternalID), owner, f.Title, f.Size, nullString(f.Format), now(),
	)
	if err != nil {
		return vaultbox.FileMetadata{}, fmt.Errorf("create: %w", err)
	}

	m, err := r.GetByID(ctx, id)
	if err != nil {
		return vaultbox.FileMetadata{}, fmt.Errorf("create: %w", err)
	}

	return m, nil
}

func (r *repo) GetByID(ctx context.Context, id uuid.UUID) (vaultbox.FileMetadata, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, tableName) //nolint:gosec // table name is a constant

	m, err := scanFile(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
		conditions = append(conditions, "owner_id = ?")
		args = append(args, q.OwnerID.String())
	}
	if !q.ShowDeleted {
		conditions = append(conditions, "is_deleted = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, tableName, where) //nolint:gosec // built from constants
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return vaultbox.ListResult{}, fmt.Errorf("list: count: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // built from constants
		`SELECT %s FROM %s %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, selectColumns, tableName, where)

	rows, err := r.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
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
	query := fmt.Sprintf(`UPDATE %s SET is_deleted = 1 WHERE id = ?`, tableName) //nolint:gosec // table name is a constant

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	return requireRow(result, "soft delete")
}

func (r *repo) FinalizeDelete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf( //nolint:gosec // table name is a constant
		`UPDATE %s SET deleted_at = COALESCE(deleted_at, ?) WHERE id = ?`, tableName)

	result, err := r.db.ExecContext(ctx, query, now(), id.String())
	if err != nil {
		return fmt.Errorf("finalize delete: %w", err)
	}

	return requireRow(result, "finalize delete")
}

func (r *repo) ListPendingPurge(ctx context.Context, limit int) ([]vaultbox.FileMetadata, error) {
	query := fmt.Sprintf( //nolint:gosec // table name is a constant
		`SELECT %s FROM %s
		WHERE is_deleted = 1 AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, selectColumns, tableName)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending purge: %w", err)
	}

	items, err := collectFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("list pending purge: %w", err)
	}

	return items, nil
}

func requireRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: %w", op, vaultbox.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (vaultbox.FileMetadata, error) {
	var m vaultbox.FileMetadata
	var idStr, createdAt string
	var internalID, ownerID, format, deletedAt sql.NullString

	err := row.Scan(
		&idStr, &internalID, &ownerID, &m.Title, &m.Size, &format, &createdAt, &deletedAt, &m.IsDeleted,
	)
	if err != nil {
		return vaultbox.FileMetadata{}, err
	}

	m.ID, err = uuid.Parse(idStr)
	if err != nil {
		return vaultbox.FileMetadata{}, fmt.Errorf("parse id: %w", err)
	}

	if ownerID.Valid {
		owner, err := uuid.Parse(ownerID.String)
		if err != nil {
			return vaultbox.FileMetadata{}, fmt.Errorf("parse owner_id: %w", err)
		}
		m.OwnerID = &owner
	}

	m.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return vaultbox.FileMetadata{}, fmt.Errorf("parse created_at: %w", err)
	}

	if deletedAt.Valid {
		t, err := time.Parse(timeFormat, deletedAt.String)
		if err != nil {
			return vaultbox.FileMetadata{}, fmt.Errorf("parse deleted_at: %w", err)
		}
		m.DeletedAt = &t
	}

	m.InternalID = internalID.String
	m.Format = format.String

	return m, nil
}

func collectFiles(rows *sql.Rows) ([]vaultbox.FileMetadata, error) {
	defer func() { _ = rows.Close() }()

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

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
