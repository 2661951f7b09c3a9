// Package histdb reads process values out of plant historian databases.
// Sites run different historians, so the package speaks plain SQL over
// mysql, postgres and sqlserver and normalizes rows into engine readings.
package histdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
)

const defaultFetchLimit = 500

type Source interface {
	TestConnection(ctx context.Context) error

	// FetchReadings returns readings recorded strictly after the
	// watermark, oldest first, capped at limit.
	FetchReadings(ctx context.Context, since time.Time, limit int) ([]engine.Reading, error)

	Close() error
}

type Config struct {
	Type     string `yaml:"type"` // mysql | postgres | mssql
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	// Table holds timestamped parameter values with columns
	// parameter_id, ts, value, quality.
	Table string `yaml:"table"`
	// Label is stamped into Reading.Source, e.g. "DCS" or "LIMS".
	Label string `yaml:"label"`
}

func NewSource(cfg Config) (Source, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, errors.New("historian type is required")
	}
	if _, err := validTable(cfg.Table); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Type) {
	case "mysql":
		return newMySQLSource(cfg)
	case "postgres", "postgresql":
		return newPostgresSource(cfg)
	case "mssql", "sqlserver":
		return newMSSQLSource(cfg)
	default:
		return nil, fmt.Errorf("unsupported historian type %q", cfg.Type)
	}
}

type baseSource struct {
	cfg Config
	db  *sql.DB
}

func (b *baseSource) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func validTable(ident string) (string, error) {
	trimmed := strings.TrimSpace(ident)
	if trimmed == "" {
		return "", errors.New("historian table is empty")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if !identPattern.MatchString(part) {
			return "", fmt.Errorf("historian table segment %q is invalid", part)
		}
	}
	return trimmed, nil
}

func scanReadings(rows *sql.Rows, label string) ([]engine.Reading, error) {
	readings := []engine.Reading{}
	for rows.Next() {
		var (
			paramID string
			ts      time.Time
			value   float64
			quality sql.NullString
		)
		if err := rows.Scan(&paramID, &ts, &value, &quality); err != nil {
			return nil, fmt.Errorf("scan historian row: %w", err)
		}
		q := engine.QualityGood
		if quality.Valid && quality.String != "" {
			q = strings.ToUpper(quality.String)
		}
		readings = append(readings, engine.Reading{
			ParameterID: paramID,
			Timestamp:   ts.UTC(),
			Value:       value,
			Quality:     q,
			Source:      label,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historian rows: %w", err)
	}
	return readings, nil
}

func normalizeFetchLimit(limit int) int {
	if limit <= 0 {
		return defaultFetchLimit
	}
	return limit
}
