package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		url  string
		want store.Kind
	}{
		{"", store.KindSQLite},
		{"sqlite:///./local.db", store.KindSQLite},
		{"memory://", store.KindMemory},
		{"postgres://u:p@db:5432/catalog", store.KindPostgres},
		{"postgresql://u:p@db/catalog?sslmode=disable", store.KindPostgres},
	}
	for _, tt := range tests {
		got, err := KindOf(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := KindOf("mysql://root@localhost/db")
	assert.ErrorContains(t, err, `"mysql"`)
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "./local.db", SQLitePath("sqlite:///./local.db"))
	assert.Equal(t, "/var/lib/catalog.db", SQLitePath("sqlite:////var/lib/catalog.db"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	mem, err := Open(ctx, "memory://", log)
	require.NoError(t, err)
	assert.Equal(t, store.KindMemory, mem.Kind())

	path := filepath.Join(t.TempDir(), "catalog.db")
	lite, err := Open(ctx, "sqlite:///"+path, log)
	require.NoError(t, err)
	defer lite.Close()
	assert.Equal(t, store.KindSQLite, lite.Kind())
	assert.FileExists(t, path)

	entries := log.GetEntries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Opening filing store", entries[0].Message)
}
