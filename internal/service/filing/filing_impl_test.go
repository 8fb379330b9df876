package filing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store/memory"
	"github.com/feichai0017/ipo-quickread/internal/store/storetest"
	"github.com/feichai0017/ipo-quickread/pkg/cache"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/queue"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*queue.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Ping(context.Context) error { return q.err }
func (q *recordingQueue) Close() error               { return nil }

func (q *recordingQueue) Tasks() []*queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Task(nil), q.tasks...)
}

type fixture struct {
	svc   *FilingCatalog
	store *memory.Store
	queue *recordingQueue
	cache *cache.MemoryCache
	clock *storetest.Clock
	log   *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := storetest.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		store: memory.New(memory.WithClock(clock.Now)),
		queue: &recordingQueue{},
		cache: cache.NewMemoryCache(),
		clock: clock,
		log:   logger.NewTestLogger(),
	}
	f.svc = NewService(f.store, f.queue, f.cache, f.log, &ServiceConfig{Now: clock.Now})
	return f
}

func date(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func sampleQuickRead() *models.QuickRead {
	return &models.QuickRead{
		BusinessModel: &models.BusinessModel{
			OneLiner:       "Cloud accounting for small businesses",
			Segments:       []string{"Subscriptions", "Payments"},
			RevenueDrivers: []string{"Seats", "Payment volume"},
			PageRefs:       []int{12, 3},
		},
		RiskTop5: []models.Risk{{Title: "Customer concentration", Detail: "Top 10 customers are 40% of revenue"}},
		Financials: &models.Financials{Periods: []models.FinancialPeriod{
			{Period: "FY2023", Revenue: 120.5, OpIncome: -14.2},
		}},
		Meta: models.Meta{ExtractionScore: 82},
	}
}

func (f *fixture) ready(t *testing.T, accession string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: accession, Form: "S-1"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, accession, nil, models.StatusProcessing)
	require.NoError(t, err)
	_, err = f.svc.AttachQuickRead(ctx, accession, sampleQuickRead())
	require.NoError(t, err)
}

func TestIngest_RequiresReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), IngestRequest{CIK: "1234"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Empty(t, f.queue.Tasks())
}

func TestIngest_RejectsBadSourceURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), IngestRequest{SourceURL: "ftp://sec.gov/x"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestIngest_CreatesAndHandsOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, IngestRequest{
		Accession:   " 0001-24-000001 ",
		SourceURL:   "https://www.sec.gov/Archives/edgar/data/1/s1.htm",
		CIK:         "0000001",
		Form:        "S-1",
		CompanyName: "Acme Corp",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Deferred)
	assert.True(t, res.HandedOff)
	assert.NotEmpty(t, res.RequestID)

	got, err := f.svc.GetFiling(ctx, "0001-24-000001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.Equal(t, "Acme Corp", got.CompanyName)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/1/s1.htm", got.FilingURL)

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskTypeFilingIngest, tasks[0].Type)
	assert.Equal(t, "0001-24-000001", tasks[0].ID)

	var payload queue.IngestPayload
	require.NoError(t, tasks[0].Decode(&payload))
	assert.Equal(t, res.RequestID, payload.RequestID)
	assert.Equal(t, "0000001", payload.CIK)
}

func TestIngest_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "A-1", Form: "S-1"})
	require.NoError(t, err)
	again, err := f.svc.Ingest(ctx, IngestRequest{Accession: "A-1", Form: "F-1", CompanyName: "Other"})
	require.NoError(t, err)
	assert.False(t, again.Created)

	got, err := f.svc.GetFiling(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", got.Form)
	assert.Empty(t, got.CompanyName)

	all, err := f.svc.Query(ctx, QueryParams{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// still new, so the hand-off is repeated
	assert.Len(t, f.queue.Tasks(), 2)
}

func TestIngest_NoHandOffOncePickedUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "A-1"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "A-1", nil, models.StatusProcessing)
	require.NoError(t, err)

	res, err := f.svc.Ingest(ctx, IngestRequest{Accession: "A-1"})
	require.NoError(t, err)
	assert.False(t, res.HandedOff)
	assert.Len(t, f.queue.Tasks(), 1)
}

func TestIngest_Deferred(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, IngestRequest{UploadID: "upload-1"})
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.False(t, res.Created)
	assert.True(t, res.HandedOff)

	all, err := f.svc.Query(ctx, QueryParams{})
	require.NoError(t, err)
	assert.Empty(t, all)

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, res.RequestID, tasks[0].ID)
}

func TestIngest_QueueFailureStillAccepted(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("redis down")

	res, err := f.svc.Ingest(context.Background(), IngestRequest{Accession: "A-1"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.HandedOff)
	assert.Contains(t, f.log.Messages("ERROR"), "Failed to enqueue ingest task")
}

func TestIngest_WithoutQueue(t *testing.T) {
	clock := storetest.NewClock(time.Now())
	svc := NewService(memory.New(memory.WithClock(clock.Now)), nil, nil, logger.NewTestLogger(), nil)

	res, err := svc.Ingest(context.Background(), IngestRequest{Accession: "A-1"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.HandedOff)

	h := svc.Health(context.Background())
	assert.Equal(t, ComponentDisabled, h.Queue)
	assert.Equal(t, ComponentDisabled, h.Cache)
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.svc.IngestBatch(ctx, []IngestRequest{
		{Accession: "B-1"},
		{},
		{Accession: "B-2"},
		{Accession: "B-1"},
	})
	require.Len(t, items, 4)
	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, models.ErrInvalidRequest)
	assert.NoError(t, items[2].Err)
	assert.NoError(t, items[3].Err)

	created := 0
	for _, i := range []int{0, 3} {
		if items[i].Result.Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	all, err := f.svc.Query(ctx, QueryParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQuery_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "ACC-1", Form: "S-1", FilingDate: date(t, "2024-01-10")})
	require.NoError(t, err)

	got, err := f.svc.Query(ctx, QueryParams{Forms: []string{"S-1"}, SinceDays: 400})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ACC-1", got[0].Accession)

	got, err = f.svc.Query(ctx, QueryParams{Forms: []string{"10-K"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestQuery_SinceDaysRelativeToClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "OLD", FilingDate: date(t, "2024-05-01")})
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, IngestRequest{Accession: "EDGE", FilingDate: date(t, "2024-05-02")})
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, IngestRequest{Accession: "UNDATED"})
	require.NoError(t, err)

	// 2024-06-01 minus 30 days is 2024-05-02, inclusive
	got, err := f.svc.Query(ctx, QueryParams{SinceDays: 30})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EDGE", got[0].Accession)

	got, err = f.svc.Query(ctx, QueryParams{SinceDays: -5, Forms: []string{" ", ""}})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQuery_StatusAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, acc := range []string{"Q-1", "Q-2", "Q-3"} {
		_, err := f.svc.Ingest(ctx, IngestRequest{Accession: acc})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err := f.svc.UpdateStatus(ctx, "Q-2", nil, models.StatusProcessing)
	require.NoError(t, err)

	got, err := f.svc.Query(ctx, QueryParams{Statuses: []models.Status{models.StatusNew}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q-3", "Q-1"}, accessionsOf(got))

	got, err = f.svc.Query(ctx, QueryParams{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q-3"}, accessionsOf(got))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "S-1"})
	require.NoError(t, err)

	newStatus := models.StatusNew
	got, err := f.svc.UpdateStatus(ctx, "S-1", &newStatus, models.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	// stale from
	_, err = f.svc.UpdateStatus(ctx, "S-1", &newStatus, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, "S-1", nil, models.StatusNew)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, "S-1", nil, models.Status(0))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.svc.UpdateStatus(ctx, "missing", nil, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = f.svc.UpdateStatus(ctx, "S-1", nil, models.StatusError)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
}

func TestGetQuickRead_Gating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetQuickRead(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrNotReady)

	_, err = f.svc.Ingest(ctx, IngestRequest{Accession: "G-1"})
	require.NoError(t, err)
	_, err = f.svc.GetQuickRead(ctx, "G-1")
	assert.ErrorIs(t, err, models.ErrNotReady)

	// ready without a document
	_, err = f.svc.UpdateStatus(ctx, "G-1", nil, models.StatusProcessing)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "G-1", nil, models.StatusReady)
	require.NoError(t, err)
	_, err = f.svc.GetQuickRead(ctx, "G-1")
	assert.ErrorIs(t, err, models.ErrNotReady)

	res, err := f.svc.AttachQuickRead(ctx, "G-1", sampleQuickRead())
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, res.Filing.Status)

	doc, err := f.svc.GetQuickRead(ctx, "G-1")
	require.NoError(t, err)
	assert.Equal(t, sampleQuickRead(), doc)
}

func TestAttachQuickRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Accession: "D-1"})
	require.NoError(t, err)

	_, err = f.svc.AttachQuickRead(ctx, "D-1", sampleQuickRead())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.AttachQuickRead(ctx, "D-1", nil)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	bad := sampleQuickRead()
	bad.Meta.ExtractionScore = 101
	_, err = f.svc.AttachQuickRead(ctx, "D-1", bad)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.svc.UpdateStatus(ctx, "D-1", nil, models.StatusProcessing)
	require.NoError(t, err)

	linty := sampleQuickRead()
	linty.UseOfProceeds = []models.ProceedsUse{{Purpose: "R&D", Percent: 70}, {Purpose: "Debt", Percent: 40}}
	res, err := f.svc.AttachQuickRead(ctx, "D-1", linty)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, res.Filing.Status)
	assert.Equal(t, []string{"use_of_proceeds percent sums to 110.00"}, res.Warnings)
	assert.Contains(t, f.log.Messages("WARN"), "Quick-read lint")

	_, err = f.svc.AttachQuickRead(ctx, "D-1", sampleQuickRead())
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	doc, err := f.svc.GetQuickRead(ctx, "D-1")
	require.NoError(t, err)
	assert.Len(t, doc.UseOfProceeds, 2)
}

func TestGetQuickRead_ServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ready(t, "C-1")
	assert.Equal(t, 1, f.cache.Len())

	// a second catalog over an empty store still answers from the shared cache
	other := NewService(memory.New(), nil, f.cache, logger.NewTestLogger(), nil)
	doc, err := other.GetQuickRead(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Cloud accounting for small businesses", doc.BusinessModel.OneLiner)
}

func TestGetQuickRead_BadCacheEntryFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ready(t, "C-2")
	require.NoError(t, f.cache.Set(ctx, "C-2", []byte("{")))

	doc, err := f.svc.GetQuickRead(ctx, "C-2")
	require.NoError(t, err)
	assert.Equal(t, 82, doc.Meta.ExtractionScore)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Health(context.Background())
	assert.Equal(t, "memory", string(h.DB))
	assert.Equal(t, ComponentOK, h.Queue)
	assert.Equal(t, ComponentOK, h.Cache)

	f.queue.err = errors.New("down")
	assert.Equal(t, ComponentUnavailable, f.svc.Health(context.Background()).Queue)
	assert.NoError(t, f.svc.Close())
}

func accessionsOf(fs []models.Filing) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Accession)
	}
	return out
}
