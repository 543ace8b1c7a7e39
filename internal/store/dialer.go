package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/docstore"
)

// Dialer opens one SQLite file per database under Dir. Every Dial opens a
// fresh handle; nothing is pooled.
type Dialer struct {
	Dir    string
	Logger *slog.Logger
}

// Dial implements driver.Dialer. The target address is ignored.
func (d Dialer) Dial(_ context.Context, target driver.Target) (driver.Conn, error) {
	path, err := DatabasePath(d.Dir, target.Database, ".db")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := Open(path, Options{Unsafe: !target.WriteConcern.Acknowledged})
	if err != nil {
		return nil, err
	}
	return docstore.NewConn(s, d.Logger), nil
}

// DatabasePath maps a database name to a file under dir. Names that could
// escape dir are rejected.
func DatabasePath(dir, database, ext string) (string, error) {
	if database == "" {
		return "", fmt.Errorf("database name is empty")
	}
	if strings.ContainsAny(database, `/\`) || database == "." || database == ".." {
		return "", fmt.Errorf("invalid database name %q", database)
	}
	return filepath.Join(dir, database+ext), nil
}
