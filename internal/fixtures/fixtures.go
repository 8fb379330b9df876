// Package fixtures loads catalog records from YAML, walking each one through
// the lifecycle to its declared status.
package fixtures

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/ipo-quickread/internal/models"
	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// DemoAccession is the accession of the embedded demo filing.
const DemoAccession = "000-000-000"

//go:embed demo.yaml
var demoYAML []byte

// File is the fixture document layout.
type File struct {
	Filings []Record `yaml:"filings"`
}

// Record is one fixture filing. FilingDate is YYYY-MM-DD or "today"; Status
// defaults to new.
type Record struct {
	Accession     string            `yaml:"accession"`
	CIK           string            `yaml:"cik"`
	CompanyName   string            `yaml:"company_name"`
	Form          string            `yaml:"form"`
	FilingDate    string            `yaml:"filing_date"`
	FilingURL     string            `yaml:"filing_url"`
	DocPrimaryURL string            `yaml:"doc_primary_url"`
	Status        string            `yaml:"status"`
	QuickRead     *models.QuickRead `yaml:"quickread"`
}

// Summary counts what a load did.
type Summary struct {
	Created int
	Skipped int
}

// Parse decodes and checks a fixture document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for i, r := range f.Filings {
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, r.Accession, err)
		}
	}
	return &f, nil
}

func (r Record) check() error {
	if strings.TrimSpace(r.Accession) == "" {
		return fmt.Errorf("%w: accession is required", models.ErrInvalidRequest)
	}
	target, err := r.target()
	if err != nil {
		return err
	}
	if r.QuickRead != nil {
		if target != models.StatusReady {
			return fmt.Errorf("%w: quickread given for a %s filing", models.ErrInvalidRequest, target)
		}
		if err := r.QuickRead.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r Record) target() (models.Status, error) {
	if strings.TrimSpace(r.Status) == "" {
		return models.StatusNew, nil
	}
	return models.ParseStatus(r.Status)
}

func (r Record) filing(now time.Time) (models.Filing, error) {
	f := models.Filing{
		CIK:           r.CIK,
		CompanyName:   r.CompanyName,
		Form:          r.Form,
		Accession:     r.Accession,
		FilingURL:     r.FilingURL,
		DocPrimaryURL: r.DocPrimaryURL,
	}
	switch d := strings.TrimSpace(r.FilingDate); d {
	case "":
	case "today":
		today := models.NewDate(now)
		f.FilingDate = &today
	default:
		parsed, err := models.ParseDate(d)
		if err != nil {
			return f, err
		}
		f.FilingDate = &parsed
	}
	return f, nil
}

// Load inserts every record that is not cataloged yet. Existing accessions are left untouched.
func Load(ctx context.Context, s store.FilingStore, file *File, now time.Time, log logger.Logger) (Summary, error) {
	var sum Summary
	for _, r := range file.Filings {
		created, err := loadRecord(ctx, s, r, now)
		if err != nil {
			return sum, fmt.Errorf("fixture %s: %w", r.Accession, err)
		}
		if !created {
			sum.Skipped++
			continue
		}
		sum.Created++
		log.Info("Fixture loaded",
			logger.String("accession", r.Accession),
			logger.String("status", r.Status),
		)
	}
	return sum, nil
}

func loadRecord(ctx context.Context, s store.FilingStore, r Record, now time.Time) (bool, error) {
	f, err := r.filing(now)
	if err != nil {
		return false, err
	}
	target, err := r.target()
	if err != nil {
		return false, err
	}

	if _, err := s.Create(ctx, f); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}

	current := models.StatusNew
	for _, next := range models.PathTo(target) {
		if next == models.StatusReady && r.QuickRead != nil {
			if _, err := s.AttachDocument(ctx, f.Accession, r.QuickRead); err != nil {
				return true, err
			}
		} else if _, err := s.UpdateStatus(ctx, f.Accession, current, next); err != nil {
			return true, err
		}
		current = next
	}
	return true, nil
}

// LoadFile reads fixtures from path.
func LoadFile(ctx context.Context, s store.FilingStore, path string, now time.Time, log logger.Logger) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read fixtures: %w", err)
	}
	file, err := Parse(data)
	if err != nil {
		return Summary{}, err
	}
	return Load(ctx, s, file, now, log)
}

// LoadDemo seeds the demo filing and its quick-read.
func LoadDemo(ctx context.Context, s store.FilingStore, now time.Time, log logger.Logger) (Summary, error) {
	file, err := Parse(demoYAML)
	if err != nil {
		return Summary{}, err
	}
	return Load(ctx, s, file, now, log)
}
