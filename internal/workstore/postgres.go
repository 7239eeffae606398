package workstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"throttlepipe/internal/engine"
)

// PostgresStore is the durable production Store, grounded on the
// teacher's internal/db/postgres.go connection setup and
// internal/queue/database.go's atomic "UPDATE ... RETURNING ... FOR
// UPDATE SKIP LOCKED" claim query.
type PostgresStore struct {
	db    *sql.DB
	lease *RedisLeaseCache // optional; nil disables lease-assisted claim
}

// NewPostgresStore opens a PostgreSQL connection pool sized the way the
// teacher's internal/db/connection_pool.go does, and pings it with an
// exponential backoff retry (the database frequently isn't accepting
// connections yet on the first few seconds of a fresh container/compose
// startup), grounded on the retry-the-operation pattern from the pack's
// JSON-RPC client backoff.Retry usage.
func NewPostgresStore(ctx context.Context, databaseURL string, lease *RedisLeaseCache) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	ping := func() error {
		return db.PingContext(ctx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db, lease: lease}, nil
}

// RunMigrations applies the file-based migrations under migrationsPath.
func (s *PostgresStore) RunMigrations(migrationsPath string) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+absPath, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Enqueue(ctx context.Context, payload []byte) (*engine.WorkItem, error) {
	id := uuid.New()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_items (id, payload, status, attempts, earliest_next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, 'PENDING', 0, $3, $3, $3)`, id, payload, now)
	if err != nil {
		return nil, fmt.Errorf("enqueue work item: %w", err)
	}
	return &engine.WorkItem{
		ID: id, Payload: payload, Status: engine.StatusPending,
		EarliestNextAttemptAt: now, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Claim atomically marks up to limit eligible items InFlight with the
// SKIP LOCKED query. When a RedisLeaseCache is configured, each claimed
// row then gets a lease marker; the marker is advisory and does not
// change which rows are claimed.
func (s *PostgresStore) Claim(ctx context.Context, limit int) ([]*engine.WorkItem, error) {
	query := `
		UPDATE work_items
		SET status = 'IN_FLIGHT', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM work_items
			WHERE status IN ('PENDING', 'FAILED') AND earliest_next_attempt_at <= NOW()
			ORDER BY earliest_next_attempt_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload, attempts, earliest_next_attempt_at, created_at, updated_at`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim work items: %w", err)
	}
	defer rows.Close()

	var items []*engine.WorkItem
	for rows.Next() {
		item := &engine.WorkItem{Status: engine.StatusInFlight}
		if err := rows.Scan(&item.ID, &item.Payload, &item.Attempts, &item.EarliestNextAttemptAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan claimed work item: %w", err)
		}
		if s.lease != nil {
			s.lease.Hold(ctx, item.ID)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = 'SENT', updated_at = NOW() WHERE id = $1 AND status = 'IN_FLIGHT'`, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if s.lease != nil {
		s.lease.Release(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempt int, delaySeconds float64, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_items
		SET status = 'FAILED', attempts = $2,
		    earliest_next_attempt_at = NOW() + ($3 || ' seconds')::interval,
		    last_error = $4, updated_at = NOW()
		WHERE id = $1`, id, attempt, delaySeconds, lastErr)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if s.lease != nil {
		s.lease.Release(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = 'DEAD_LETTERED', last_error = $2, updated_at = NOW() WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("move to dead letter: %w", err)
	}
	if s.lease != nil {
		s.lease.Release(ctx, id)
	}
	return nil
}

func (s *PostgresStore) AllTerminal(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_items WHERE status NOT IN ('SENT', 'DEAD_LETTERED')`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("all terminal: %w", err)
	}
	return n == 0, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("counts: %w", err)
	}
	defer rows.Close()

	var c StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, err
		}
		switch status {
		case "PENDING":
			c.Pending = n
		case "IN_FLIGHT":
			c.InFlight = n
		case "SENT":
			c.Sent = n
		case "FAILED":
			c.Failed = n
		case "DEAD_LETTERED":
			c.DeadLettered = n
		}
	}
	return c, rows.Err()
}
