package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// PolicySchema creates the table read by PostgresStore.
const PolicySchema = `
CREATE TABLE IF NOT EXISTS access_policies (
	kind   TEXT NOT NULL,
	object TEXT NOT NULL,
	action TEXT NOT NULL,
	PRIMARY KEY (kind, object, action)
);
`

const (
	defaultChannel = "carepass_policy_changed"

	querySelectPolicies = `SELECT kind, object, action FROM access_policies ORDER BY kind, object, action`
	queryInsertPolicy   = `INSERT INTO access_policies (kind, object, action) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
)

// PostgresStore keeps policies in Postgres and uses LISTEN/NOTIFY so every
// instance reloads after a change.
type PostgresStore struct {
	pool    *pgxpool.Pool
	channel string
}

// NewPostgresStore returns a store notifying on channel, or on a default
// channel when it is empty.
func NewPostgresStore(pool *pgxpool.Pool, channel string) *PostgresStore {
	if channel == "" {
		channel = defaultChannel
	}
	return &PostgresStore{pool: pool, channel: channel}
}

// Migrate creates the policy table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PolicySchema); err != nil {
		return fmt.Errorf("authz: migrate: %w", err)
	}
	return nil
}

// Load returns every stored policy.
func (s *PostgresStore) Load(ctx context.Context) ([]Policy, error) {
	rows, err := s.pool.Query(ctx, querySelectPolicies)
	if err != nil {
		return nil, fmt.Errorf("authz: load policies: %w", err)
	}

	policies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Policy, error) {
		var p Policy
		err := row.Scan(&p.Kind, &p.Object, &p.Action)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("authz: scan policies: %w", err)
	}
	return policies, nil
}

// Seed inserts policies that are not stored yet and notifies listeners.
func (s *PostgresStore) Seed(ctx context.Context, policies []Policy) error {
	if len(policies) == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range policies {
			batch.Queue(queryInsertPolicy, p.Kind, p.Object, p.Action)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("authz: seed policies: %w", err)
	}

	return s.Notify(ctx)
}

// Notify tells every listener that the policy set changed.
func (s *PostgresStore) Notify(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, '')", s.channel); err != nil {
		return fmt.Errorf("authz: notify: %w", err)
	}
	return nil
}

// Watch calls onChange after each notification until ctx is done. A lost
// connection is retried with a capped Fibonacci backoff.
func (s *PostgresStore) Watch(ctx context.Context, onChange func(context.Context)) error {
	b := retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.listen(ctx, onChange)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		slog.ErrorContext(ctx, "authz policy listener failed", "error", err)
		return retry.RetryableError(err)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *PostgresStore) listen(ctx context.Context, onChange func(context.Context)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("authz: acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("authz: listen %s: %w", s.channel, err)
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		onChange(ctx)
	}
}

// Sync loads the stored policies into enf.
func (s *PostgresStore) Sync(ctx context.Context, enf *Enforcer) error {
	policies, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return enf.Replace(policies)
}
