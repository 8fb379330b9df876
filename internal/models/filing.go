package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Filing 监管文件目录记录
type Filing struct {
	CIK           string
	CompanyName   string
	Form          string
	Accession     string
	FilingDate    *Date
	FilingURL     string
	DocPrimaryURL string
	Status        Status
	CreatedAt     time.Time
	// Seq is the store-assigned insertion sequence, used to break created_at ties.
	Seq int64
}

// Normalize trims every string field.
func (f *Filing) Normalize() {
	f.CIK = strings.TrimSpace(f.CIK)
	f.CompanyName = strings.TrimSpace(f.CompanyName)
	f.Form = strings.TrimSpace(f.Form)
	f.Accession = strings.TrimSpace(f.Accession)
	f.FilingURL = strings.TrimSpace(f.FilingURL)
	f.DocPrimaryURL = strings.TrimSpace(f.DocPrimaryURL)
}

// ValidateForCreate checks a filing about to be created at createdAt.
func (f *Filing) ValidateForCreate(createdAt time.Time) error {
	if f.Accession == "" {
		return fmt.Errorf("%w: accession is required", ErrInvalidRequest)
	}
	if f.FilingDate != nil && f.FilingDate.After(NewDate(createdAt)) {
		return fmt.Errorf("%w: filing_date %s is in the future", ErrInvalidRequest, f.FilingDate)
	}
	return nil
}

// ValidateSourceURL accepts absolute http(s) URLs only.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: bad source url %q", ErrInvalidRequest, raw)
	}
	return nil
}
