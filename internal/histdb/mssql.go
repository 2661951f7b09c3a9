package histdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"cmms-backend/services/adaptation-service/internal/engine"
)

type MSSQLSource struct {
	baseSource
}

func newMSSQLSource(cfg Config) (*MSSQLSource, error) {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	encrypt := "true"
	if sslMode == "disable" {
		encrypt = "disable"
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, cfg.Database, encrypt)
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql historian: %w", err)
	}
	return &MSSQLSource{baseSource{cfg: cfg, db: db}}, nil
}

func (s *MSSQLSource) TestConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql historian: %w", err)
	}
	return nil
}

func (s *MSSQLSource) FetchReadings(ctx context.Context, since time.Time, limit int) ([]engine.Reading, error) {
	table, err := validTable(s.cfg.Table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT TOP (@p1) parameter_id, ts, value, quality FROM %s WHERE ts > @p2 ORDER BY ts ASC", table)
	rows, err := s.db.QueryContext(ctx, query, normalizeFetchLimit(limit), since)
	if err != nil {
		return nil, fmt.Errorf("query mssql historian: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows, s.cfg.Label)
}
