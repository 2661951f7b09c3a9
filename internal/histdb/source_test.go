package histdb

import (
	"strings"
	"testing"
)

func TestValidTable(t *testing.T) {
	cases := []struct {
		ident string
		ok    bool
	}{
		{"process_values", true},
		{"archive.process_values", true},
		{"Process_Values2", true},
		{"", false},
		{"  ", false},
		{"values; DROP TABLE users", false},
		{"archive..values", false},
		{"1values", false},
	}
	for _, tc := range cases {
		_, err := validTable(tc.ident)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.ident, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.ident)
		}
	}
}

func TestNewSourceDispatch(t *testing.T) {
	cfg := Config{Host: "historian.local", Database: "pi", Table: "process_values"}
	for _, typ := range []string{"mysql", "postgres", "postgresql", "mssql", "sqlserver"} {
		cfg.Type = typ
		src, err := NewSource(cfg)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if err := src.Close(); err != nil {
			t.Fatalf("%s: close failed: %v", typ, err)
		}
	}
}

func TestNewSourceRejectsBadConfig(t *testing.T) {
	if _, err := NewSource(Config{Type: "oracle", Table: "process_values"}); err == nil {
		t.Fatalf("expected unsupported type to fail")
	}
	if _, err := NewSource(Config{Table: "process_values"}); err == nil {
		t.Fatalf("expected missing type to fail")
	}
	_, err := NewSource(Config{Type: "mysql", Table: "bad table"})
	if err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("expected invalid table error, got %v", err)
	}
}

func TestNormalizeFetchLimit(t *testing.T) {
	if got := normalizeFetchLimit(0); got != defaultFetchLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := normalizeFetchLimit(-5); got != defaultFetchLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := normalizeFetchLimit(50); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
