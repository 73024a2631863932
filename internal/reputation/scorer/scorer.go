// Package scorer derives a bounded reputation score from a credential
// history.
//
// Scoring is a pure function: identical inputs always produce identical
// scores, and adding a credential never decreases any term. Each term is
// individually capped and the sum is capped at MaxScore, so the score is a
// signal, not a currency.
package scorer

import (
	"sort"
	"time"
)

// MaxScore is the upper bound of the total score.
const MaxScore = 1000.0

// Term caps and weights.
const (
	countPerCredential = 40.0
	countCap           = 400.0

	volumePerKG = 0.5
	volumeCap   = 250.0

	longevityPerPeriod = 20.0
	longevityCap       = 200.0

	consistencyPerMonth = 25.0
	consistencyCap      = 150.0

	// periodDays is one scoring period; consistency only counts once the
	// credential span exceeds it.
	periodDays = 30
)

// Input is one non-revoked credential, reduced to what scoring needs.
type Input struct {
	IssuanceDate time.Time
	QuantityKG   float64
}

// Score is the derived reputation value with its supporting counts. It is
// never stored; it is recomputed from the credential set on demand.
type Score struct {
	Value float64 `json:"value"`

	CountTerm       float64 `json:"count_term"`
	VolumeTerm      float64 `json:"volume_term"`
	LongevityTerm   float64 `json:"longevity_term"`
	ConsistencyTerm float64 `json:"consistency_term"`

	CredentialCount int     `json:"credential_count"`
	TotalQuantityKG float64 `json:"total_quantity_kg"`
	SpanDays        int     `json:"span_days"`
	ActiveMonths    int     `json:"active_months"`
}

// Compute maps a credential history to a bounded score. Order of inputs does
// not matter.
func Compute(inputs []Input) Score {
	s := Score{CredentialCount: len(inputs)}
	if len(inputs) == 0 {
		return s
	}

	dates := make([]time.Time, 0, len(inputs))
	months := make(map[string]bool)
	for _, in := range inputs {
		dates = append(dates, in.IssuanceDate)
		months[in.IssuanceDate.UTC().Format("2006-01")] = true
		if in.QuantityKG > 0 {
			s.TotalQuantityKG += in.QuantityKG
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	span := dates[len(dates)-1].Sub(dates[0])
	s.SpanDays = int(span.Hours() / 24)
	s.ActiveMonths = len(months)

	s.CountTerm = capped(countPerCredential*float64(s.CredentialCount), countCap)
	s.VolumeTerm = capped(volumePerKG*s.TotalQuantityKG, volumeCap)
	s.LongevityTerm = capped(longevityPerPeriod*float64(s.SpanDays/periodDays), longevityCap)
	if s.SpanDays > periodDays {
		s.ConsistencyTerm = capped(consistencyPerMonth*float64(s.ActiveMonths), consistencyCap)
	}

	s.Value = capped(s.CountTerm+s.VolumeTerm+s.LongevityTerm+s.ConsistencyTerm, MaxScore)
	return s
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
