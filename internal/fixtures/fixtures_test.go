package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store/memory"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

var now = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func TestLoadDemo(t *testing.T) {
	ctx := context.Background()
	s := memory.New(memory.WithClock(func() time.Time { return now }))
	log := logger.NewTestLogger()

	sum, err := LoadDemo(ctx, s, now, log)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1}, sum)

	f, err := s.Get(ctx, DemoAccession)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.Status)
	assert.Equal(t, "S-1", f.Form)
	assert.Equal(t, "Demo Company", f.CompanyName)
	require.NotNil(t, f.FilingDate)
	assert.Equal(t, "2024-03-15", f.FilingDate.String())

	doc, err := s.GetDocument(ctx, DemoAccession)
	require.NoError(t, err)
	assert.Len(t, doc.RiskTop5, 5)
	assert.Equal(t, []int{12}, doc.RiskTop5[0].PageRefs)
	assert.Equal(t, 95, doc.Meta.ExtractionScore)
	require.NotNil(t, doc.Financials)
	assert.Equal(t, -3000000.0, doc.Financials.Periods[0].OpIncome)
	assert.Equal(t, int64(1500000), doc.OfferingTerms.Greenshoe)
	assert.Empty(t, doc.Lint())

	// a second run leaves the row alone
	sum, err = LoadDemo(ctx, s, now.Add(48*time.Hour), log)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.Equal(t, []string{"Fixture loaded"}, log.Messages("INFO"))
}

func TestLoadFile_WalksLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New(memory.WithClock(func() time.Time { return now }))

	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
filings:
  - accession: F-NEW
    form: S-1
    filing_date: 2024-02-01
  - accession: F-PROC
    form: F-1
    status: processing
  - accession: F-ERR
    status: error
  - accession: F-READY
    status: ready
`), 0o644))

	sum, err := LoadFile(ctx, s, path, now, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Created)

	want := map[string]models.Status{
		"F-NEW":   models.StatusNew,
		"F-PROC":  models.StatusProcessing,
		"F-ERR":   models.StatusError,
		"F-READY": models.StatusReady,
	}
	for acc, status := range want {
		f, err := s.Get(ctx, acc)
		require.NoError(t, err)
		assert.Equal(t, status, f.Status, acc)
	}

	// ready without a quickread has no document
	_, err = s.GetDocument(ctx, "F-READY")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing accession", "filings:\n  - form: S-1\n"},
		{"bad status", "filings:\n  - accession: A\n    status: demo\n"},
		{"quickread on new filing", "filings:\n  - accession: A\n    quickread:\n      meta: {extraction_score: 10}\n"},
		{"invalid quickread", "filings:\n  - accession: A\n    status: ready\n    quickread:\n      meta: {extraction_score: 500}\n"},
		{"not yaml", "filings: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadDate(t *testing.T) {
	s := memory.New()
	file, err := Parse([]byte("filings:\n  - accession: A\n    filing_date: 2024/01/01\n"))
	require.NoError(t, err)

	_, err = Load(context.Background(), s, file, now, logger.NewNop())
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(context.Background(), memory.New(), filepath.Join(t.TempDir(), "none.yaml"), now, logger.NewNop())
	assert.Error(t, err)
}
