package models

// MaxQueryLimit is the hard ceiling on any catalog query.
const MaxQueryLimit = 200

// FilingQuery is the resolved filter set handed to a store.
type FilingQuery struct {
	// Forms exact-match set; empty matches every form.
	Forms []string
	// Since keeps filings dated on or after it. Undated filings never match.
	Since *Date
	// Statuses empty matches every status.
	Statuses []Status
	Limit    int
}

// ClampLimit applies the default and the hard ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Matches reports whether f satisfies every filter of q.
func (q FilingQuery) Matches(f Filing) bool {
	if len(q.Forms) > 0 && !contains(q.Forms, f.Form) {
		return false
	}
	if q.Since != nil {
		if f.FilingDate == nil || f.FilingDate.Before(*q.Since) {
			return false
		}
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if st == f.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Newer orders a before b when a was cataloged more recently.
func Newer(a, b Filing) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
