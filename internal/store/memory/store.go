package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
)

var _ store.FilingStore = (*Store)(nil)

// Store is an in-memory FilingStore.
type Store struct {
	mu        sync.RWMutex
	filings   map[string]models.Filing
	documents map[string][]byte
	seq       int64
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the created_at source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		filings:   make(map[string]models.Filing),
		documents: make(map[string][]byte),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(_ context.Context, f models.Filing) (*models.Filing, error) {
	f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	if err := f.ValidateForCreate(created); err != nil {
		return nil, err
	}
	if _, ok := s.filings[f.Accession]; ok {
		return nil, fmt.Errorf("filing %s: %w", f.Accession, models.ErrAlreadyExists)
	}

	s.seq++
	f.Status = models.StatusNew
	f.CreatedAt = created
	f.Seq = s.seq
	s.filings[f.Accession] = f
	return &f, nil
}

func (s *Store) Get(_ context.Context, accession string) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filings[accession]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", accession, models.ErrNotFound)
	}
	return &f, nil
}

func (s *Store) UpdateStatus(_ context.Context, accession string, from, to models.Status) (*models.Filing, error) {
	if err := models.CheckTransition(from, to); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.filings[accession]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", accession, models.ErrNotFound)
	}
	if f.Status != from {
		return nil, fmt.Errorf("filing %s is %s, expected %s: %w", accession, f.Status, from, models.ErrInvalidTransition)
	}
	f.Status = to
	s.filings[accession] = f
	return &f, nil
}

func (s *Store) List(_ context.Context, q models.FilingQuery) ([]models.Filing, error) {
	limit := models.ClampLimit(q.Limit)

	s.mu.RLock()
	out := make([]models.Filing, 0)
	for _, f := range s.filings {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return models.Newer(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachDocument(_ context.Context, accession string, doc *models.QuickRead) (*models.Filing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.filings[accession]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", accession, models.ErrNotFound)
	}
	if !store.AttachableFrom(f.Status) {
		return nil, fmt.Errorf("filing %s is %s: %w", accession, f.Status, models.ErrInvalidTransition)
	}
	if _, ok := s.documents[accession]; ok {
		return nil, fmt.Errorf("quick-read %s: %w", accession, models.ErrAlreadyExists)
	}

	// Held encoded so later caller mutations never reach the stored document.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode quick-read %s: %w", accession, err)
	}
	s.documents[accession] = raw
	f.Status = models.StatusReady
	s.filings[accession] = f
	return &f, nil
}

func (s *Store) GetDocument(_ context.Context, accession string) (*models.QuickRead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.documents[accession]
	if !ok {
		return nil, fmt.Errorf("quick-read %s: %w", accession, models.ErrNotFound)
	}
	var doc models.QuickRead
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode quick-read %s: %w", accession, err)
	}
	return &doc, nil
}

func (s *Store) Kind() store.Kind { return store.KindMemory }

func (s *Store) Close() error { return nil }
