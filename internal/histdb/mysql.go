package histdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"cmms-backend/services/adaptation-service/internal/engine"
)

type MySQLSource struct {
	baseSource
}

func newMySQLSource(cfg Config) (*MySQLSource, error) {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql historian: %w", err)
	}
	return &MySQLSource{baseSource{cfg: cfg, db: db}}, nil
}

func (s *MySQLSource) TestConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql historian: %w", err)
	}
	return nil
}

func (s *MySQLSource) FetchReadings(ctx context.Context, since time.Time, limit int) ([]engine.Reading, error) {
	table, err := validTable(s.cfg.Table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT parameter_id, ts, value, quality FROM %s WHERE ts > ? ORDER BY ts ASC LIMIT ?", table)
	rows, err := s.db.QueryContext(ctx, query, since, normalizeFetchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query mysql historian: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows, s.cfg.Label)
}
