package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SubscriptionStore = (*SubscriptionRepo)(nil)

const subscriptionColumns = `id, repo_url, owner, repo, kinds, channels, frequency, active,
	filters, notify_config, created_at, last_checked`

// SubscriptionRepo is the SQLite implementation of the SubscriptionStore port.
// Set-valued and nested fields are stored as JSON text.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given DB.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Add inserts a new subscription. Returns ErrSubscriptionExists if an active
// subscription for the same repository already exists.
func (r *SubscriptionRepo) Add(ctx context.Context, sub model.Subscription) error {
	const query = `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	kinds, err := json.Marshal(sub.Kinds)
	if err != nil {
		return fmt.Errorf("encode kinds: %w", err)
	}
	channels, err := json.Marshal(channelsOrEmpty(sub.Channels))
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	filters, err := nullableJSON(sub.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	notifyConfig, err := nullableJSON(sub.NotifyConfig)
	if err != nil {
		return fmt.Errorf("encode notify config: %w", err)
	}

	var lastChecked sql.NullString
	if sub.LastChecked != nil {
		lastChecked = sql.NullString{String: formatTime(*sub.LastChecked), Valid: true}
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		sub.ID, sub.RepoURL, sub.Owner, sub.Repo, string(kinds), string(channels),
		string(sub.Frequency), sub.Active, filters, notifyConfig,
		formatTime(createdAt), lastChecked,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("add subscription %s: %w", sub.FullName(), driven.ErrSubscriptionExists)
		}
		return fmt.Errorf("add subscription %s: %w", sub.FullName(), err)
	}

	return nil
}

// Get retrieves a subscription by ID. Returns ErrSubscriptionNotFound if it
// does not exist.
func (r *SubscriptionRepo) Get(ctx context.Context, id string) (*model.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`

	sub, err := scanSubscription(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription %s: %w", id, driven.ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}

	return sub, nil
}

// ListAll returns every subscription, active or not, oldest first.
func (r *SubscriptionRepo) ListAll(ctx context.Context) ([]model.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at, id`
	return r.list(ctx, query)
}

// ListActive returns active subscriptions, oldest first.
func (r *SubscriptionRepo) ListActive(ctx context.Context) ([]model.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE active = 1 ORDER BY created_at, id`
	return r.list(ctx, query)
}

// ListByFrequency returns active subscriptions that take part in scans of
// period p. Subscriptions with frequency "both" match either period.
func (r *SubscriptionRepo) ListByFrequency(ctx context.Context, p model.Period) ([]model.Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE active = 1 AND frequency IN (?, 'both') ORDER BY created_at, id`
	return r.list(ctx, query, string(p))
}

// Deactivate marks a subscription inactive. Returns ErrSubscriptionNotFound
// if it does not exist.
func (r *SubscriptionRepo) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE subscriptions SET active = 0 WHERE id = ?`
	return r.execOne(ctx, "deactivate", id, query, id)
}

// Delete removes a subscription. Returns ErrSubscriptionNotFound if it does
// not exist.
func (r *SubscriptionRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM subscriptions WHERE id = ?`
	return r.execOne(ctx, "delete", id, query, id)
}

// UpdateLastChecked sets the checkpoint of every listed subscription to at,
// unless its current checkpoint is already later. Unknown IDs are ignored.
func (r *SubscriptionRepo) UpdateLastChecked(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	stamp := formatTime(at)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `UPDATE subscriptions SET last_checked = ?
		WHERE id IN (` + placeholders + `) AND (last_checked IS NULL OR last_checked < ?)`

	args := make([]any, 0, len(ids)+2)
	args = append(args, stamp)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, stamp)

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update last_checked for %d subscriptions: %w", len(ids), err)
	}

	return nil
}

func (r *SubscriptionRepo) execOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s subscription %s: %w", op, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%s subscription %s: %w", op, id, driven.ErrSubscriptionNotFound)
	}

	return nil
}

func (r *SubscriptionRepo) list(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

func scanSubscription(s scanner) (*model.Subscription, error) {
	var (
		sub          model.Subscription
		kinds        string
		channels     string
		frequency    string
		filters      sql.NullString
		notifyConfig sql.NullString
		createdAt    string
		lastChecked  sql.NullString
	)

	err := s.Scan(&sub.ID, &sub.RepoURL, &sub.Owner, &sub.Repo, &kinds, &channels,
		&frequency, &sub.Active, &filters, &notifyConfig, &createdAt, &lastChecked)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(kinds), &sub.Kinds); err != nil {
		return nil, fmt.Errorf("decode kinds: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &sub.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	sub.Frequency = model.Frequency(frequency)

	if filters.Valid {
		sub.Filters = &model.FilterRules{}
		if err := json.Unmarshal([]byte(filters.String), sub.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}
	if notifyConfig.Valid {
		sub.NotifyConfig = &model.NotifyConfig{}
		if err := json.Unmarshal([]byte(notifyConfig.String), sub.NotifyConfig); err != nil {
			return nil, fmt.Errorf("decode notify config: %w", err)
		}
	}

	sub.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if lastChecked.Valid {
		t, err := parseTime(lastChecked.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_checked: %w", err)
		}
		sub.LastChecked = &t
	}

	return &sub, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func channelsOrEmpty(c []model.Channel) []model.Channel {
	if c == nil {
		return []model.Channel{}
	}
	return c
}
