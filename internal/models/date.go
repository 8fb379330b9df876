package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date wire format.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component, held at UTC midnight.
type Date struct {
	t time.Time
}

// NewDate truncates t to its UTC calendar date.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, s)
	}
	return Date{t: t}, nil
}

func (d Date) String() string     { return d.t.Format(DateLayout) }
func (d Date) Time() time.Time    { return d.t }
func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// AddDays returns d shifted by n days (negative n goes back).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
