package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var siteLogEventSpec = archiveSpec{
	liveTable:    "site_log_event",
	archiveTable: "site_log_event_archive",
	columns: []string{
		"id", "site_id", "created_time", "details", "extended_data",
		"function_set", "log_event_code", "log_event_id", "log_event_pen",
		"profile_id",
	},
}

// LogEventRepository defines the interface for client diagnostic events.
// Events are append-only; they are archived only by the site delete cascade.
type LogEventRepository interface {
	Create(ctx context.Context, event *models.SiteLogEvent) error
	Get(ctx context.Context, siteID, eventID int64) (*models.SiteLogEvent, error)
	List(ctx context.Context, siteID int64, limit, offset int) ([]*models.SiteLogEvent, error)
	Count(ctx context.Context, siteID int64) (int, error)
}

type logEventRepo struct {
	pool *pgxpool.Pool
}

// NewLogEventRepository creates a new log event repository.
func NewLogEventRepository(pool *pgxpool.Pool) LogEventRepository {
	return &logEventRepo{pool: pool}
}

// Create inserts a diagnostic event.
func (r *logEventRepo) Create(ctx context.Context, event *models.SiteLogEvent) error {
	query := `
		INSERT INTO site_log_event (
			site_id, details, extended_data, function_set, log_event_code,
			log_event_id, log_event_pen, profile_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		event.SiteID, event.Details, event.ExtendedData, event.FunctionSet,
		event.LogEventCode, event.LogEventID, event.LogEventPEN, event.ProfileID,
	).Scan(&event.ID, &event.CreatedTime)
}

// Get fetches one diagnostic event. Returns nil when the event does not
// exist or belongs to another site.
func (r *logEventRepo) Get(ctx context.Context, siteID, eventID int64) (*models.SiteLogEvent, error) {
	query := `
		SELECT id, site_id, created_time, details, extended_data, function_set,
		       log_event_code, log_event_id, log_event_pen, profile_id
		FROM site_log_event
		WHERE site_id = $1 AND id = $2`

	var e models.SiteLogEvent
	err := r.pool.QueryRow(ctx, query, siteID, eventID).Scan(
		&e.ID, &e.SiteID, &e.CreatedTime, &e.Details, &e.ExtendedData,
		&e.FunctionSet, &e.LogEventCode, &e.LogEventID, &e.LogEventPEN, &e.ProfileID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List pages a site's diagnostic events, newest first.
func (r *logEventRepo) List(ctx context.Context, siteID int64, limit, offset int) ([]*models.SiteLogEvent, error) {
	query := `
		SELECT id, site_id, created_time, details, extended_data, function_set,
		       log_event_code, log_event_id, log_event_pen, profile_id
		FROM site_log_event
		WHERE site_id = $1
		ORDER BY created_time DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SiteLogEvent
	for rows.Next() {
		var e models.SiteLogEvent
		err := rows.Scan(
			&e.ID, &e.SiteID, &e.CreatedTime, &e.Details, &e.ExtendedData,
			&e.FunctionSet, &e.LogEventCode, &e.LogEventID, &e.LogEventPEN, &e.ProfileID,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Count returns the number of diagnostic events for a site.
func (r *logEventRepo) Count(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM site_log_event WHERE site_id = $1`, siteID).Scan(&count)
	return count, err
}

var _ LogEventRepository = (*logEventRepo)(nil)
