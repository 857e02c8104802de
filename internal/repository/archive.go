// Package repository provides data access layer implementations.
//
// Every mutable entity has a parallel archive table holding point-in-time
// copies of rows. The invariant across the package: a live row is archived
// BEFORE it is updated or deleted, inside the same transaction, so the
// archive holds every state a row has ever been in.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so archive-before-mutate sequences can run inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// archiveSpec describes the live/archive table pair for one entity. columns
// lists the live columns, which the archive table mirrors after its
// archive_id, archive_time and deleted_time prefix.
type archiveSpec struct {
	liveTable    string
	archiveTable string
	columns      []string
}

func (s archiveSpec) columnList() string {
	return strings.Join(s.columns, ", ")
}

// copyIntoArchive snapshots the live rows matched by where into the archive
// table. archive_time defaults to NOW() in the database so concurrent
// archivals order consistently.
func copyIntoArchive(ctx context.Context, q Querier, spec archiveSpec, where string, args ...any) error {
	cols := spec.columnList()
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s`,
		spec.archiveTable, cols, cols, spec.liveTable, where,
	)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("archiving %s rows: %w", spec.liveTable, err)
	}
	return nil
}

// deleteIntoArchive deletes the live rows matched by where and writes their
// final state to the archive with deleted_time set, in a single round trip.
// Returns the number of rows deleted.
func deleteIntoArchive(ctx context.Context, q Querier, spec archiveSpec, deletedTime time.Time, where string, args ...any) (int64, error) {
	cols := spec.columnList()
	// The DELETE runs in the CTE; its RETURNING set feeds the archive
	// insert, so no row can slip between snapshot and delete.
	query := fmt.Sprintf(
		`WITH deleted AS (
			DELETE FROM %s WHERE %s RETURNING %s
		)
		INSERT INTO %s (deleted_time, %s) SELECT $%d, %s FROM deleted`,
		spec.liveTable, where, cols,
		spec.archiveTable, cols, len(args)+1, cols,
	)
	tag, err := q.Exec(ctx, query, append(args, deletedTime)...)
	if err != nil {
		return 0, fmt.Errorf("deleting %s rows into archive: %w", spec.liveTable, err)
	}
	return tag.RowsAffected(), nil
}

// ArchivePeriod selects archive rows by when they were archived or deleted.
type ArchivePeriod struct {
	// Start is inclusive, End exclusive.
	Start time.Time
	End   time.Time
	// DeletedOnly restricts to terminal (deleted) archive rows, matching on
	// deleted_time instead of archive_time.
	DeletedOnly bool
}

func (p ArchivePeriod) whereClause(firstArg int) string {
	col := "archive_time"
	if p.DeletedOnly {
		col = "deleted_time"
	}
	return fmt.Sprintf("%s >= $%d AND %s < $%d", col, firstArg, col, firstArg+1)
}

// countArchiveForPeriod counts archive rows falling in the period.
func countArchiveForPeriod(ctx context.Context, q Querier, spec archiveSpec, period ArchivePeriod) (int, error) {
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s`,
		spec.archiveTable, period.whereClause(1),
	)
	var count int
	if err := q.QueryRow(ctx, query, period.Start, period.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", spec.archiveTable, err)
	}
	return count, nil
}

// selectArchiveForPeriod pages archive rows falling in the period, ordered
// by archive_id ascending. scan maps one row to a value.
func selectArchiveForPeriod[T any](
	ctx context.Context, q Querier, spec archiveSpec, period ArchivePeriod,
	limit, offset int,
	scan func(pgx.Rows) (T, error),
) ([]T, error) {
	query := fmt.Sprintf(
		`SELECT archive_id, archive_time, deleted_time, %s FROM %s
		WHERE %s ORDER BY archive_id ASC LIMIT $3 OFFSET $4`,
		spec.columnList(), spec.archiveTable, period.whereClause(1),
	)
	rows, err := q.Query(ctx, query, period.Start, period.End, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("selecting %s rows: %w", spec.archiveTable, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
