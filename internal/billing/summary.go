package billing

import "github.com/shopspring/decimal"

// Summary aggregates per-user results of one run
type Summary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"successful"`
	Failed    int             `json:"failed"`
	Charged   decimal.Decimal `json:"total_amount"`
	Renewed   int             `json:"renewed,omitempty"`
	Suspended int             `json:"suspended,omitempty"`
}

// SummarizeHourly aggregates hourly billing results
func SummarizeHourly(results []HourlyResult) Summary {
	s := Summary{Total: len(results), Charged: decimal.Zero}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Charged = s.Charged.Add(r.Charged)
	}
	return s
}

// SummarizeRenewal aggregates auto-renewal results. Charges of a user whose
// pass failed part way are included since they were committed.
func SummarizeRenewal(results []RenewalResult) Summary {
	s := Summary{Total: len(results), Charged: decimal.Zero}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Charged = s.Charged.Add(r.Charged)
		s.Renewed += r.Renewed
		s.Suspended += r.Suspended
	}
	return s
}
