// Package sqlstore implements store.FilingStore on database/sql, for SQLite (modernc.org/sqlite)
// and PostgreSQL (github.com/lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/internal/store/sqlstore/migrations"
)

var _ store.FilingStore = (*Store)(nil)

const filingColumns = `id, cik, company_name, form, accession, filing_date, filing_url, doc_primary_url, status, created_at`

// Store is a SQL-backed FilingStore.
type Store struct {
	db   *sql.DB
	kind store.Kind
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the created_at source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// OpenSQLite opens (creating if needed) a SQLite database at path and migrates it.
// path may be ":memory:".
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL for concurrent readers, a bounded busy wait, and write locks taken at BEGIN so
	// read-then-write transactions never deadlock on lock upgrade.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return newStore(ctx, db, store.KindSQLite, opts...)
}

// OpenPostgres connects to a PostgreSQL database by URL and migrates it.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return newStore(ctx, db, store.KindPostgres, opts...)
}

func newStore(ctx context.Context, db *sql.DB, kind store.Kind, opts ...Option) (*Store, error) {
	s := &Store{db: db, kind: kind, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	dialect, err := fs.Sub(migrations.FS, string(kind))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading %s migrations: %w", kind, err)
	}
	if err := s.migrate(ctx, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Kind() store.Kind { return s.kind }

func (s *Store) Close() error { return s.db.Close() }

// migrate applies every NNN_*.up.sql above the recorded schema version.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at BIGINT  NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
				version, s.now().UTC().UnixNano())
			return err
		})
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, f models.Filing) (*models.Filing, error) {
	f.Normalize()
	created := s.now().UTC()
	if err := f.ValidateForCreate(created); err != nil {
		return nil, err
	}

	// The UNIQUE accession column serialises racing creates: exactly one insert returns a row.
	row := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO filings (cik, company_name, form, accession, filing_date, filing_url, doc_primary_url, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (accession) DO NOTHING
		RETURNING id`),
		f.CIK, f.CompanyName, f.Form, f.Accession, dateValue(f.FilingDate),
		f.FilingURL, f.DocPrimaryURL, models.StatusNew.String(), created.UnixNano(),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("filing %s: %w", f.Accession, models.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("inserting filing %s: %w", f.Accession, err)
	}

	f.Seq = id
	f.Status = models.StatusNew
	f.CreatedAt = time.Unix(0, created.UnixNano()).UTC()
	return &f, nil
}

func (s *Store) Get(ctx context.Context, accession string) (*models.Filing, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+filingColumns+` FROM filings WHERE accession = ?`), accession)
	f, err := scanFiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filing %s: %w", accession, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting filing %s: %w", accession, err)
	}
	return f, nil
}

func (s *Store) UpdateStatus(ctx context.Context, accession string, from, to models.Status) (*models.Filing, error) {
	if err := models.CheckTransition(from, to); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE filings SET status = ? WHERE accession = ? AND status = ?`),
		to.String(), accession, from.String())
	if err != nil {
		return nil, fmt.Errorf("updating filing %s: %w", accession, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating filing %s: %w", accession, err)
	}
	if n == 0 {
		current, err := s.Get(ctx, accession)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("filing %s is %s, expected %s: %w", accession, current.Status, from, models.ErrInvalidTransition)
	}
	return s.Get(ctx, accession)
}

func (s *Store) List(ctx context.Context, q models.FilingQuery) ([]models.Filing, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Forms) > 0 {
		where = append(where, "form IN ("+placeholders(len(q.Forms))+")")
		for _, f := range q.Forms {
			args = append(args, f)
		}
	}
	if q.Since != nil {
		// ISO dates order lexically
		where = append(where, "filing_date IS NOT NULL AND filing_date >= ?")
		args = append(args, q.Since.String())
	}
	if len(q.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, st.String())
		}
	}

	query := `SELECT ` + filingColumns + ` FROM filings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, models.ClampLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing filings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Filing, 0)
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning filing: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating filings: %w", err)
	}
	return out, nil
}

func (s *Store) AttachDocument(ctx context.Context, accession string, doc *models.QuickRead) (*models.Filing, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding quick-read %s: %w", accession, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM filings WHERE accession = ?`), accession).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("filing %s: %w", accession, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading filing %s: %w", accession, err)
		}
		current, err := models.ParseStatus(status)
		if err != nil {
			return err
		}
		if !store.AttachableFrom(current) {
			return fmt.Errorf("filing %s is %s: %w", accession, current, models.ErrInvalidTransition)
		}

		res, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO quickreads (accession, document, attached_at) VALUES (?, ?, ?)
			ON CONFLICT (accession) DO NOTHING`),
			accession, string(raw), s.now().UTC().UnixNano())
		if err != nil {
			return fmt.Errorf("inserting quick-read %s: %w", accession, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("quick-read %s: %w", accession, models.ErrAlreadyExists)
		}

		if current == models.StatusProcessing {
			res, err := tx.ExecContext(ctx, s.rebind(`UPDATE filings SET status = ? WHERE accession = ? AND status = ?`),
				models.StatusReady.String(), accession, models.StatusProcessing.String())
			if err != nil {
				return fmt.Errorf("marking filing %s ready: %w", accession, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return fmt.Errorf("filing %s left processing: %w", accession, models.ErrInvalidTransition)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, accession)
}

func (s *Store) GetDocument(ctx context.Context, accession string) (*models.QuickRead, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT document FROM quickreads WHERE accession = ?`), accession).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quick-read %s: %w", accession, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting quick-read %s: %w", accession, err)
	}

	var doc models.QuickRead
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding quick-read %s: %w", accession, err)
	}
	return &doc, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $N for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.kind != store.KindPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFiling(sc scanner) (*models.Filing, error) {
	var (
		f          models.Filing
		filingDate sql.NullString
		status     string
		createdAt  int64
	)
	if err := sc.Scan(&f.Seq, &f.CIK, &f.CompanyName, &f.Form, &f.Accession, &filingDate,
		&f.FilingURL, &f.DocPrimaryURL, &status, &createdAt); err != nil {
		return nil, err
	}
	if filingDate.Valid && filingDate.String != "" {
		d, err := models.ParseDate(filingDate.String)
		if err != nil {
			return nil, err
		}
		f.FilingDate = &d
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	f.Status = st
	f.CreatedAt = time.Unix(0, createdAt).UTC()
	return &f, nil
}

func dateValue(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
