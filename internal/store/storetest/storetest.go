// Package storetest is the behavioural suite every store.FilingStore must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
)

// Factory builds an empty store whose created_at clock is now.
type Factory func(t *testing.T, now func() time.Time) store.FilingStore

// Clock is a settable test clock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newStore Factory)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"CreateConcurrentSameAccession", testCreateConcurrent},
		{"CreateRejectsFutureFilingDate", testCreateFutureDate},
		{"GetNotFound", testGetNotFound},
		{"UpdateStatusForward", testUpdateStatusForward},
		{"UpdateStatusRejectsBackward", testUpdateStatusBackward},
		{"UpdateStatusCompareAndSwap", testUpdateStatusCAS},
		{"UpdateStatusNotFound", testUpdateStatusNotFound},
		{"ListOrderAndLimit", testListOrder},
		{"ListFilters", testListFilters},
		{"ListCap", testListCap},
		{"AttachDocument", testAttachDocument},
		{"AttachDocumentGating", testAttachGating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, newStore) })
	}
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func date(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func testCreateAndGet(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)

	created, err := s.Create(ctx, models.Filing{
		CIK:           "0001234567",
		CompanyName:   "Acme Corp",
		Form:          " S-1 ",
		Accession:     "0001234567-24-000001",
		FilingDate:    date(t, "2024-05-30"),
		FilingURL:     "https://www.sec.gov/ixviewer/doc",
		DocPrimaryURL: "https://www.sec.gov/Archives/edgar/",
		Status:        models.StatusReady,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, created.Status, "create always starts at new")
	assert.True(t, created.CreatedAt.Equal(base))
	assert.Equal(t, "S-1", created.Form)

	got, err := s.Get(ctx, "0001234567-24-000001")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.CompanyName)
	assert.Equal(t, "2024-05-30", got.FilingDate.String())
	assert.Equal(t, models.StatusNew, got.Status)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.Equal(t, created.Seq, got.Seq)
}

func testCreateDuplicate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(base)
	s := newStore(t, clock.Now)

	_, err := s.Create(ctx, models.Filing{Accession: "ACC-1", Form: "S-1"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = s.Create(ctx, models.Filing{Accession: "ACC-1", Form: "10-K"})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	got, err := s.Get(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", got.Form, "first create wins")
	assert.True(t, got.CreatedAt.Equal(base), "created_at is never rewritten")
}

func testCreateConcurrent(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
		other    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, models.Filing{Accession: "ACC-RACE", CIK: fmt.Sprint(i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, models.ErrAlreadyExists):
				conflict++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflict)

	all, err := s.List(ctx, models.FilingQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testCreateFutureDate(t *testing.T, newStore Factory) {
	s := newStore(t, NewClock(base).Now)
	_, err := s.Create(context.Background(), models.Filing{Accession: "ACC-F", FilingDate: date(t, "2024-06-02")})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = s.Get(context.Background(), "ACC-F")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testGetNotFound(t *testing.T, newStore Factory) {
	s := newStore(t, NewClock(base).Now)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testUpdateStatusForward(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	_, err := s.Create(ctx, models.Filing{Accession: "ACC-1"})
	require.NoError(t, err)

	f, err := s.UpdateStatus(ctx, "ACC-1", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, f.Status)

	f, err = s.UpdateStatus(ctx, "ACC-1", models.StatusProcessing, models.StatusError)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, f.Status)
	assert.True(t, f.CreatedAt.Equal(base))
}

func testUpdateStatusBackward(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	_, err := s.Create(ctx, models.Filing{Accession: "ACC-1"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "ACC-1", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "ACC-1", models.StatusProcessing, models.StatusReady)
	require.NoError(t, err)

	for _, to := range []models.Status{models.StatusNew, models.StatusProcessing, models.StatusError} {
		_, err := s.UpdateStatus(ctx, "ACC-1", models.StatusReady, to)
		assert.ErrorIs(t, err, models.ErrInvalidTransition, "ready -> %s", to)
	}
	_, err = s.UpdateStatus(ctx, "ACC-1", models.StatusNew, models.StatusReady)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "new -> ready skips processing")

	got, err := s.Get(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
}

func testUpdateStatusCAS(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	_, err := s.Create(ctx, models.Filing{Accession: "ACC-1"})
	require.NoError(t, err)

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateStatus(ctx, "ACC-1", models.StatusNew, models.StatusProcessing)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one racer moves new -> processing")
}

func testUpdateStatusNotFound(t *testing.T, newStore Factory) {
	s := newStore(t, NewClock(base).Now)
	_, err := s.UpdateStatus(context.Background(), "nope", models.StatusNew, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testListOrder(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(base)
	s := newStore(t, clock.Now)

	// A and B share a created_at; C is newer.
	for _, acc := range []string{"A", "B"} {
		_, err := s.Create(ctx, models.Filing{Accession: acc})
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)
	_, err := s.Create(ctx, models.Filing{Accession: "C"})
	require.NoError(t, err)

	all, err := s.List(ctx, models.FilingQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, accessions(all))

	two, err := s.List(ctx, models.FilingQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, accessions(two))
}

func testListFilters(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)

	seed := []models.Filing{
		{Accession: "S1-RECENT", Form: "S-1", FilingDate: date(t, "2024-05-20")},
		{Accession: "S1-OLD", Form: "S-1", FilingDate: date(t, "2023-01-01")},
		{Accession: "S1-UNDATED", Form: "S-1"},
		{Accession: "F1-RECENT", Form: "F-1", FilingDate: date(t, "2024-05-31")},
		{Accession: "10K", Form: "10-K", FilingDate: date(t, "2024-05-25")},
	}
	for _, f := range seed {
		_, err := s.Create(ctx, f)
		require.NoError(t, err)
	}
	_, err := s.UpdateStatus(ctx, "F1-RECENT", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)

	since := date(t, "2024-05-02")
	tests := []struct {
		name string
		q    models.FilingQuery
		want []string
	}{
		{"forms", models.FilingQuery{Forms: []string{"S-1"}}, []string{"S1-RECENT", "S1-OLD", "S1-UNDATED"}},
		{"form set", models.FilingQuery{Forms: []string{"F-1", "10-K"}}, []string{"F1-RECENT", "10K"}},
		{"since excludes old and undated", models.FilingQuery{Since: since}, []string{"S1-RECENT", "F1-RECENT", "10K"}},
		{"forms and since", models.FilingQuery{Forms: []string{"S-1"}, Since: since}, []string{"S1-RECENT"}},
		{"status", models.FilingQuery{Statuses: []models.Status{models.StatusProcessing}}, []string{"F1-RECENT"}},
		{"no match", models.FilingQuery{Forms: []string{"424B4"}}, []string{}},
		{"case sensitive", models.FilingQuery{Forms: []string{"s-1"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.q)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, accessions(got))
		})
	}
}

func testListCap(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	for i := 0; i < models.MaxQueryLimit+5; i++ {
		_, err := s.Create(ctx, models.Filing{Accession: fmt.Sprintf("ACC-%03d", i)})
		require.NoError(t, err)
	}

	got, err := s.List(ctx, models.FilingQuery{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, got, models.MaxQueryLimit)
	assert.Equal(t, fmt.Sprintf("ACC-%03d", models.MaxQueryLimit+4), got[0].Accession)
}

func testAttachDocument(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	_, err := s.Create(ctx, models.Filing{Accession: "ACC-1"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "ACC-1", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)

	doc := &models.QuickRead{
		RiskTop5: []models.Risk{{Title: "Concentration", PageRefs: []int{12, 3}}},
		Financials: &models.Financials{Periods: []models.FinancialPeriod{
			{Period: "FY2023", OpIncome: -3_000_000, NetIncome: -4_500_000},
		}},
		Meta: models.Meta{Warnings: []string{"low ocr quality p.3"}, ExtractionScore: 71},
	}
	f, err := s.AttachDocument(ctx, "ACC-1", doc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.Status, "attach completes a processing filing")

	doc.Meta.ExtractionScore = 0
	got, err := s.GetDocument(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, 71, got.Meta.ExtractionScore, "stored document is not aliased")
	assert.Equal(t, []int{12, 3}, got.RiskTop5[0].PageRefs)
	assert.Equal(t, -3_000_000.0, got.Financials.Periods[0].OpIncome)

	_, err = s.AttachDocument(ctx, "ACC-1", doc)
	assert.ErrorIs(t, err, models.ErrAlreadyExists, "documents are immutable once attached")
}

func testAttachGating(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock(base).Now)
	doc := &models.QuickRead{Meta: models.Meta{ExtractionScore: 50}}

	_, err := s.AttachDocument(ctx, "missing", doc)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.Create(ctx, models.Filing{Accession: "NEW"})
	require.NoError(t, err)
	_, err = s.AttachDocument(ctx, "NEW", doc)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.Create(ctx, models.Filing{Accession: "ERR"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "ERR", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "ERR", models.StatusProcessing, models.StatusError)
	require.NoError(t, err)
	_, err = s.AttachDocument(ctx, "ERR", doc)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.GetDocument(ctx, "NEW")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// a filing already marked ready without a document may still receive one
	_, err = s.Create(ctx, models.Filing{Accession: "READY"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "READY", models.StatusNew, models.StatusProcessing)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "READY", models.StatusProcessing, models.StatusReady)
	require.NoError(t, err)
	f, err := s.AttachDocument(ctx, "READY", doc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.Status)
}

func accessions(fs []models.Filing) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Accession)
	}
	return out
}
