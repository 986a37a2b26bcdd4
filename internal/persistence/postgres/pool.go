package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and waits for the database to accept connections.
// Container orchestration commonly starts the service before Postgres is
// ready, so the initial ping retries with exponential backoff.
func Connect(ctx context.Context, postgresURL string, timeout time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, err
	}

	b := backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	ticker := backoff.NewTicker(&b)
	defer ticker.Stop()

	var pingErr error
	for range ticker.C {
		if pingErr = pool.Ping(ctx); pingErr == nil {
			return pool, nil
		}
	}

	pool.Close()
	if pingErr == nil {
		pingErr = errors.New("database not reachable before timeout")
	}
	return nil, pingErr
}
