package models

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRisks bounds risk_top5.
const MaxRisks = 5

// QuickRead 招股书速读文档, produced by the extraction pipeline and served verbatim.
type QuickRead struct {
	BusinessModel *BusinessModel `json:"business_model,omitempty" yaml:"business_model,omitempty"`
	RiskTop5      []Risk         `json:"risk_top5" yaml:"risk_top5"`
	UseOfProceeds []ProceedsUse  `json:"use_of_proceeds" yaml:"use_of_proceeds"`
	OfferingTerms *OfferingTerms `json:"offering_terms,omitempty" yaml:"offering_terms,omitempty"`
	Financials    *Financials    `json:"financials,omitempty" yaml:"financials,omitempty"`
	Valuation     *Valuation     `json:"valuation,omitempty" yaml:"valuation,omitempty"`
	Meta          Meta           `json:"meta" yaml:"meta"`
}

type BusinessModel struct {
	OneLiner       string   `json:"one_liner" yaml:"one_liner"`
	Segments       []string `json:"segments" yaml:"segments"`
	RevenueDrivers []string `json:"revenue_drivers" yaml:"revenue_drivers"`
	PageRefs       []int    `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

// Risk entries are ordered by materiality, most material first.
type Risk struct {
	Title    string `json:"title" yaml:"title"`
	Detail   string `json:"detail" yaml:"detail"`
	PageRefs []int  `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

type ProceedsUse struct {
	Purpose   string  `json:"purpose" yaml:"purpose"`
	AmountUSD float64 `json:"amount_usd" yaml:"amount_usd"`
	Percent   float64 `json:"percent" yaml:"percent"`
	Note      string  `json:"note" yaml:"note"`
	PageRefs  []int   `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

type OfferingTerms struct {
	PriceRange    string   `json:"price_range" yaml:"price_range"`
	SharesOffered int64    `json:"shares_offered" yaml:"shares_offered"`
	Greenshoe     int64    `json:"greenshoe" yaml:"greenshoe"`
	Underwriters  []string `json:"underwriters" yaml:"underwriters"`
	FloatShares   int64    `json:"float_shares" yaml:"float_shares"`
	PageRefs      []int    `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

// Financials periods are ordered chronologically, oldest first.
type Financials struct {
	Periods  []FinancialPeriod `json:"periods" yaml:"periods"`
	PageRefs []int             `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

type FinancialPeriod struct {
	Period      string  `json:"period" yaml:"period"`
	Revenue     float64 `json:"revenue" yaml:"revenue"`
	GrossMargin float64 `json:"gross_margin" yaml:"gross_margin"`
	OpIncome    float64 `json:"op_income" yaml:"op_income"`
	NetIncome   float64 `json:"net_income" yaml:"net_income"`
	CFO         float64 `json:"cfo" yaml:"cfo"`
	Cash        float64 `json:"cash" yaml:"cash"`
	Debt        float64 `json:"debt" yaml:"debt"`
}

type Valuation struct {
	PSLow       float64 `json:"ps_low" yaml:"ps_low"`
	PSHigh      float64 `json:"ps_high" yaml:"ps_high"`
	Method      string  `json:"method" yaml:"method"`
	Assumptions string  `json:"assumptions" yaml:"assumptions"`
	PageRefs    []int   `json:"page_refs,omitempty" yaml:"page_refs,omitempty"`
}

type Meta struct {
	Warnings        []string `json:"warnings" yaml:"warnings"`
	ExtractionScore int      `json:"extraction_score" yaml:"extraction_score"`
}

// Validate rejects documents that break the schema's hard bounds.
func (q *QuickRead) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if q.Meta.ExtractionScore < 0 || q.Meta.ExtractionScore > 100 {
		fail("meta.extraction_score %d outside 0-100", q.Meta.ExtractionScore)
	}

	if q.BusinessModel != nil {
		checkPageRefs("business_model", q.BusinessModel.PageRefs, fail)
	}

	if len(q.RiskTop5) > MaxRisks {
		fail("risk_top5 has %d entries, max %d", len(q.RiskTop5), MaxRisks)
	}
	for i, r := range q.RiskTop5 {
		if strings.TrimSpace(r.Title) == "" {
			fail("risk_top5[%d].title is empty", i)
		}
		checkPageRefs(fmt.Sprintf("risk_top5[%d]", i), r.PageRefs, fail)
	}

	for i, p := range q.UseOfProceeds {
		if p.Percent < 0 || p.Percent > 100 {
			fail("use_of_proceeds[%d].percent %.2f outside 0-100", i, p.Percent)
		}
		if p.AmountUSD < 0 {
			fail("use_of_proceeds[%d].amount_usd is negative", i)
		}
		checkPageRefs(fmt.Sprintf("use_of_proceeds[%d]", i), p.PageRefs, fail)
	}

	if t := q.OfferingTerms; t != nil {
		if t.SharesOffered < 0 || t.Greenshoe < 0 || t.FloatShares < 0 {
			fail("offering_terms share counts must not be negative")
		}
		checkPageRefs("offering_terms", t.PageRefs, fail)
	}

	if f := q.Financials; f != nil {
		for i, p := range f.Periods {
			if strings.TrimSpace(p.Period) == "" {
				fail("financials.periods[%d].period is empty", i)
			}
		}
		checkPageRefs("financials", f.PageRefs, fail)
	}

	if v := q.Valuation; v != nil {
		if v.PSLow > v.PSHigh {
			fail("valuation.ps_low %.2f above ps_high %.2f", v.PSLow, v.PSHigh)
		}
		checkPageRefs("valuation", v.PageRefs, fail)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

// Lint reports SHOULD-level issues. They never block attaching the document.
func (q *QuickRead) Lint() []string {
	var issues []string

	var total float64
	for _, p := range q.UseOfProceeds {
		total += p.Percent
	}
	if total > 100 {
		issues = append(issues, fmt.Sprintf("use_of_proceeds percent sums to %.2f", total))
	}

	if q.Financials != nil {
		seen := make(map[string]bool, len(q.Financials.Periods))
		for _, p := range q.Financials.Periods {
			if seen[p.Period] {
				issues = append(issues, fmt.Sprintf("financials period %q repeated", p.Period))
			}
			seen[p.Period] = true
		}
	}

	return issues
}

func checkPageRefs(section string, refs []int, fail func(string, ...any)) {
	for _, p := range refs {
		if p <= 0 {
			fail("%s.page_refs contains non-positive page %d", section, p)
			return
		}
	}
}
