// Package backend picks a FilingStore implementation from a database URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/internal/store/memory"
	"github.com/feichai0017/ipo-quickread/internal/store/sqlstore"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// DefaultURL is used when no database URL is configured.
const DefaultURL = "sqlite:///./local.db"

// KindOf reports the backend kind a URL selects.
func KindOf(databaseURL string) (store.Kind, error) {
	u := strings.TrimSpace(databaseURL)
	if u == "" {
		u = DefaultURL
	}
	switch {
	case strings.HasPrefix(u, "memory:"):
		return store.KindMemory, nil
	case strings.HasPrefix(u, "sqlite:"):
		return store.KindSQLite, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return store.KindPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme: %q", scheme(u))
	}
}

// SQLitePath maps sqlite:///relative.db and sqlite:////abs/path.db to file paths.
func SQLitePath(databaseURL string) string {
	p := strings.TrimPrefix(strings.TrimSpace(databaseURL), "sqlite://")
	return strings.TrimPrefix(p, "/")
}

// Open connects to the store selected by databaseURL.
func Open(ctx context.Context, databaseURL string, log logger.Logger) (store.FilingStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		databaseURL = DefaultURL
	}
	kind, err := KindOf(databaseURL)
	if err != nil {
		return nil, err
	}

	log.Info("Opening filing store", logger.String("kind", string(kind)))

	switch kind {
	case store.KindMemory:
		return memory.New(), nil
	case store.KindSQLite:
		path := SQLitePath(databaseURL)
		s, err := sqlstore.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
		}
		return s, nil
	default:
		s, err := sqlstore.OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	}
}

func scheme(u string) string {
	if i := strings.Index(u, ":"); i >= 0 {
		return u[:i]
	}
	return u
}
