// Package datasource provides the SQL collaborator used by database_query tasks.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrUnsupportedURL = errors.New("unsupported database URL")

// Querier runs SQL on behalf of task types.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Placeholder() squirrel.PlaceholderFormat
}

// DB is a Querier backed by database/sql.
type DB struct {
	db          *sql.DB
	logger      *slog.Logger
	driver      string
	placeholder squirrel.PlaceholderFormat
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use lib/pq,
// sqlite:// URLs use modernc sqlite with the remainder as DSN (sqlite://:memory:).
func Open(ctx context.Context, logger *slog.Logger, databaseURL string) (*DB, error) {
	driver, dsn, placeholder, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		database.SetMaxOpenConns(1)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.InfoContext(ctx, "Connected to data source", "driver", driver)

	return &DB{db: database, logger: logger, driver: driver, placeholder: placeholder}, nil
}

func parseURL(databaseURL string) (string, string, squirrel.PlaceholderFormat, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL, squirrel.Dollar, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dsn := strings.TrimPrefix(databaseURL, "sqlite://")
		if dsn == "" {
			return "", "", nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, databaseURL)
		}

		return "sqlite", dsn, squirrel.Question, nil
	default:
		return "", "", nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, databaseURL)
	}
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) Placeholder() squirrel.PlaceholderFormat {
	return d.placeholder
}

// Query returns every row as a column name to value map.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			d.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []map[string]any{}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
			} else {
				row[column] = values[i]
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Exec runs a statement and returns the number of affected rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected, nil
}

// HealthCheck verifies the database connection is healthy.
func (d *DB) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
