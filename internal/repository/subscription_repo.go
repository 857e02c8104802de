package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var subscriptionSpec = archiveSpec{
	liveTable:    "subscription",
	archiveTable: "subscription_archive",
	columns: []string{
		"id", "aggregator_id", "created_time", "changed_time", "resource_type",
		"resource_id", "scoped_site_id", "notification_uri", "entity_limit",
	},
}

const subscriptionColumns = `id, aggregator_id, created_time, changed_time, resource_type,
	resource_id, scoped_site_id, notification_uri, entity_limit`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(
		&s.ID, &s.AggregatorID, &s.CreatedTime, &s.ChangedTime, &s.ResourceType,
		&s.ResourceID, &s.ScopedSiteID, &s.NotificationURI, &s.EntityLimit,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SubscriptionRepository defines the interface for subscription data
// operations.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, aggregatorID, id int64) (*models.Subscription, error)
	List(ctx context.Context, aggregatorID int64, scopedSiteID *int64, limit, offset int) ([]*models.Subscription, error)
	Count(ctx context.Context, aggregatorID int64, scopedSiteID *int64) (int, error)
	Delete(ctx context.Context, aggregatorID, id int64, deletedTime time.Time) (bool, error)
	// ListForResource retrieves every subscription watching a resource
	// type, conditions attached, across all aggregators. The matcher
	// filters by tenant.
	ListForResource(ctx context.Context, resourceType models.SubscriptionResource) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

// Create inserts a subscription and its conditions in one transaction.
func (r *subscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO subscription (
			aggregator_id, changed_time, resource_type, resource_id,
			scoped_site_id, notification_uri, entity_limit
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_time`

	err = tx.QueryRow(ctx, query,
		sub.AggregatorID, sub.ChangedTime, sub.ResourceType, sub.ResourceID,
		sub.ScopedSiteID, sub.NotificationURI, sub.EntityLimit,
	).Scan(&sub.ID, &sub.CreatedTime)
	if err != nil {
		return err
	}

	for i := range sub.Conditions {
		c := &sub.Conditions[i]
		c.SubscriptionID = sub.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO subscription_condition (subscription_id, attribute, lower_threshold, upper_threshold)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			c.SubscriptionID, c.Attribute, c.LowerThreshold, c.UpperThreshold,
		).Scan(&c.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *subscriptionRepo) attachConditions(ctx context.Context, subs map[int64]*models.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, subscription_id, attribute, lower_threshold, upper_threshold
		FROM subscription_condition WHERE subscription_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.SubscriptionCondition
		if err := rows.Scan(&c.ID, &c.SubscriptionID, &c.Attribute, &c.LowerThreshold, &c.UpperThreshold); err != nil {
			return err
		}
		if sub, ok := subs[c.SubscriptionID]; ok {
			sub.Conditions = append(sub.Conditions, c)
		}
	}
	return rows.Err()
}

// GetByID retrieves a subscription, conditions attached, within an
// aggregator's scope.
func (r *subscriptionRepo) GetByID(ctx context.Context, aggregatorID, id int64) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription WHERE id = $1 AND aggregator_id = $2`
	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id, aggregatorID))
	if err != nil || sub == nil {
		return sub, err
	}
	if err := r.attachConditions(ctx, map[int64]*models.Subscription{sub.ID: sub}); err != nil {
		return nil, err
	}
	return sub, nil
}

// List pages an aggregator's subscriptions, optionally narrowed to one site.
func (r *subscriptionRepo) List(ctx context.Context, aggregatorID int64, scopedSiteID *int64, limit, offset int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + ` FROM subscription
		WHERE aggregator_id = $1 AND ($2::bigint IS NULL OR scoped_site_id = $2)
		ORDER BY id ASC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, aggregatorID, scopedSiteID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.Subscription)
	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		byID[sub.ID] = sub
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachConditions(ctx, byID); err != nil {
		return nil, err
	}
	return subs, nil
}

// Count returns the number of subscriptions matching the List filter.
func (r *subscriptionRepo) Count(ctx context.Context, aggregatorID int64, scopedSiteID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM subscription WHERE aggregator_id = $1 AND ($2::bigint IS NULL OR scoped_site_id = $2)`
	var count int
	err := r.pool.QueryRow(ctx, query, aggregatorID, scopedSiteID).Scan(&count)
	return count, err
}

// Delete removes a subscription, archiving it with the given deleted_time.
// Conditions cascade in the database. Returns false if the subscription
// does not exist in the aggregator's scope.
func (r *subscriptionRepo) Delete(ctx context.Context, aggregatorID, id int64, deletedTime time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	n, err := deleteIntoArchive(ctx, tx, subscriptionSpec, deletedTime, "id = $1 AND aggregator_id = $2", id, aggregatorID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

// ListForResource retrieves every subscription watching a resource type,
// conditions attached.
func (r *subscriptionRepo) ListForResource(ctx context.Context, resourceType models.SubscriptionResource) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription WHERE resource_type = $1 ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, resourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.Subscription)
	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		byID[sub.ID] = sub
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachConditions(ctx, byID); err != nil {
		return nil, err
	}
	return subs, nil
}

var _ SubscriptionRepository = (*subscriptionRepo)(nil)
