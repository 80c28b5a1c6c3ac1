package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/intakedesk/apiserver/config"
	_ "github.com/lib/pq"
)

const (
	driverName      = "postgres"
	applicationName = "intake-apiserver"
	pingTimeout     = 5 * time.Second
	retryInterval   = time.Second
)

// DSN builds the lib/pq connection URL for cfg.Database.
func DSN(cfg config.Config) string {
	dbc := cfg.Database
	q := url.Values{}
	q.Set("sslmode", "disable")
	if dbc.UseSSL {
		q.Set("sslmode", "require")
	}
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbc.User, dbc.Password),
		Host:     net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port)),
		Path:     dbc.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to postgres and sizes the pool from cfg. A server that is
// still starting is retried until ConnectWaitSeconds have passed.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open(driverName, DSN(cfg))
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(max(maxOpen/5, 1))
	conn.SetConnMaxIdleTime(2 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)

	deadline := time.Now().Add(time.Duration(cfg.Database.ConnectWaitSeconds) * time.Second)
	for attempt := 1; ; attempt++ {
		err = ping(ctx, conn)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			break
		}
		slog.Default().Warn("database not ready", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	_ = conn.Close()
	return nil, fmt.Errorf("ping database %s: %w", cfg.Database.Host, err)
}

func ping(ctx context.Context, conn *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.PingContext(ctx)
}
