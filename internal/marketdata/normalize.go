package marketdata

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Bounds outside which a value is either corrected or kept with a warning.
const (
	maxReasonableYield = 50   // percent; above this the unit was almost certainly wrong
	maxReasonablePE    = 1000
	maxReasonablePB    = 50
	maxReasonableROE   = 100 // percent, either sign
	consistencyBand    = 0.1 // market cap vs price*shares tolerance
)

// Normalize turns a provider payload into a Snapshot, applying unit
// corrections and recording a Warning for every field it corrected or
// kept under protest. The symbol identity field is the only hard
// requirement; everything else degrades to absent.
func Normalize(raw RawQuote) (*Snapshot, error) {
	symbol := strings.TrimSpace(raw.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("payload missing symbol identity")
	}

	var warnings []Warning

	s := &Snapshot{
		Symbol:    symbol,
		Name:      raw.LongName,
		Currency:  raw.Currency,
		Exchange:  raw.Exchange,
		Sector:    raw.Sector,
		Industry:  raw.Industry,
		FetchedAt: raw.FetchedAt,
	}
	if s.FetchedAt.IsZero() {
		s.FetchedAt = time.Now()
	}

	s.DividendYield = normalizeYield(raw.DividendYield, &warnings)
	s.PERatio = normalizeRatio(raw.TrailingPE, "pe_ratio", maxReasonablePE, &warnings)
	s.PBRatio = normalizeRatio(raw.PriceToBook, "pb_ratio", maxReasonablePB, &warnings)
	s.CurrentPrice = normalizePrice(raw.CurrentPrice, raw.RegularMarketPrice, &warnings)
	s.MarketCap = normalizePositive(raw.MarketCap, "market_cap", &warnings)
	s.SharesOutstanding = normalizePositive(raw.SharesOutstanding, "shares_outstanding", &warnings)
	s.ROE = normalizeROE(raw.ReturnOnEquity, &warnings)

	checkConsistency(s, &warnings)

	s.Warnings = warnings
	return s, nil
}

// normalizeYield handles the provider's habit of returning dividend yield
// as a fraction (0.045 meaning 4.5%). Values above maxReasonableYield are
// treated as a unit error and divided back down.
func normalizeYield(v *float64, warnings *[]Warning) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	y := *v
	if y > 0 && y <= 1 {
		y *= 100
		*warnings = append(*warnings, Warning{
			Level:   LevelMinor,
			Field:   "dividend_yield",
			Message: fmt.Sprintf("converted fraction %v to %v%%", *v, y),
		})
	}
	if y > maxReasonableYield {
		corrected := y / 100
		*warnings = append(*warnings, Warning{
			Level:   LevelCritical,
			Field:   "dividend_yield",
			Message: fmt.Sprintf("implausible yield %v%%, corrected to %v%%", y, corrected),
		})
		return &corrected
	}
	if y < 0 {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   "dividend_yield",
			Message: fmt.Sprintf("negative yield %v dropped", y),
		})
		return nil
	}
	return &y
}

func normalizeRatio(v *float64, field string, max float64, warnings *[]Warning) *float64 {
	if v == nil {
		return nil
	}
	r := *v
	if r < 0 {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   field,
			Message: fmt.Sprintf("negative %s %v dropped", field, r),
		})
		return nil
	}
	if r > max {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   field,
			Message: fmt.Sprintf("%s %v beyond plausible %v, kept", field, r, max),
		})
	}
	return &r
}

// normalizePrice prefers the current price and falls back to the regular
// market price. Non-positive prices are unusable.
func normalizePrice(current, regular *float64, warnings *[]Warning) *float64 {
	v := current
	if v == nil {
		v = regular
	}
	if v == nil {
		return nil
	}
	p := *v
	if p <= 0 {
		*warnings = append(*warnings, Warning{
			Level:   LevelCritical,
			Field:   "current_price",
			Message: fmt.Sprintf("non-positive price %v dropped", p),
		})
		return nil
	}
	return &p
}

func normalizePositive(v *float64, field string, warnings *[]Warning) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	if x <= 0 {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   field,
			Message: fmt.Sprintf("non-positive %s %v dropped", field, x),
		})
		return nil
	}
	return &x
}

// normalizeROE converts fractional ROE (0.15 meaning 15%) to a percentage
// and flags magnitudes beyond maxReasonableROE without dropping them.
func normalizeROE(v *float64, warnings *[]Warning) *float64 {
	if v == nil {
		return nil
	}
	r := *v
	if r >= -1 && r <= 1 && r != 0 {
		r *= 100
	}
	if r > maxReasonableROE || r < -maxReasonableROE {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   "roe",
			Message: fmt.Sprintf("roe %v%% beyond plausible range, kept", r),
		})
	}
	return &r
}

// checkConsistency cross-checks market cap against price times shares
// outstanding when all three are present.
func checkConsistency(s *Snapshot, warnings *[]Warning) {
	if s.CurrentPrice == nil || s.MarketCap == nil || s.SharesOutstanding == nil {
		return
	}
	computed := *s.CurrentPrice * *s.SharesOutstanding
	if math.Abs(computed-*s.MarketCap) / *s.MarketCap > consistencyBand {
		*warnings = append(*warnings, Warning{
			Level:   LevelWarning,
			Field:   "market_cap_consistency",
			Message: fmt.Sprintf("market cap %v disagrees with price*shares %v", *s.MarketCap, computed),
		})
	}
}
