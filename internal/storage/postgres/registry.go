// Package postgres implements the device registry on the device_tokens table
// shared with the trip platform's relational database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_tokens (
	id           BIGSERIAL PRIMARY KEY,
	user_id      TEXT NOT NULL,
	device_token TEXT NOT NULL,
	platform     TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS device_tokens_token_idx ON device_tokens (device_token);
CREATE INDEX IF NOT EXISTS device_tokens_user_id_idx ON device_tokens (user_id);
`

// Registry implements dispatch.DeviceRegistry on PostgreSQL. The unique index
// on device_token enforces single ownership; registration upserts on it.
type Registry struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool, now: time.Now}
}

// Connect opens a pool and pings it, retrying with a linear backoff while the
// database comes up.
func Connect(ctx context.Context, dsn string, attempts int, interval time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres connect aborted after %d attempts: %w", i+1, ctx.Err())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}
	return nil, fmt.Errorf("postgres connect failed after %d attempts: %w", attempts, lastErr)
}

// Migrate creates the device_tokens table and its indexes when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("device_tokens migration failed: %w", err)
	}
	return nil
}

func (r *Registry) Register(ctx context.Context, device notification.Device) (string, error) {
	if device.UserID == "" || device.Token == "" {
		return "", dispatch.ErrInvalidDevice
	}

	var previousOwner string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		previousOwner = ""
		var owner string
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM device_tokens WHERE device_token = $1 FOR UPDATE`,
			device.Token,
		).Scan(&owner)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if owner != "" && owner != device.UserID {
			previousOwner = owner
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO device_tokens (user_id, device_token, platform, updated_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4)
			 ON CONFLICT (device_token) DO UPDATE
			 SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = EXCLUDED.updated_at`,
			device.UserID, device.Token, device.Platform, r.now(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("postgres register failed: %w", err)
	}
	return previousOwner, nil
}

func (r *Registry) Unregister(ctx context.Context, userID, token string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM device_tokens WHERE user_id = $1 AND device_token = $2`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("postgres unregister failed: %w", err)
	}
	return nil
}

func (r *Registry) TokensFor(ctx context.Context, userID string) ([]notification.Device, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT device_token, COALESCE(platform, ''), updated_at
		 FROM device_tokens WHERE user_id = $1 ORDER BY device_token`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres tokens query failed: %w", err)
	}
	defer rows.Close()

	devices := make([]notification.Device, 0)
	for rows.Next() {
		d := notification.Device{UserID: userID}
		if err := rows.Scan(&d.Token, &d.Platform, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres tokens scan failed: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres tokens iteration failed: %w", err)
	}
	return devices, nil
}
