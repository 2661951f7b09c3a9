package histdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"cmms-backend/services/adaptation-service/internal/engine"
)

type PostgresSource struct {
	baseSource
}

func newPostgresSource(cfg Config) (*PostgresSource, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres historian: %w", err)
	}
	return &PostgresSource{baseSource{cfg: cfg, db: db}}, nil
}

func (s *PostgresSource) TestConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres historian: %w", err)
	}
	return nil
}

func (s *PostgresSource) FetchReadings(ctx context.Context, since time.Time, limit int) ([]engine.Reading, error) {
	table, err := validTable(s.cfg.Table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT parameter_id, ts, value, quality FROM %s WHERE ts > $1 ORDER BY ts ASC LIMIT $2", table)
	rows, err := s.db.QueryContext(ctx, query, since, normalizeFetchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query postgres historian: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows, s.cfg.Label)
}
