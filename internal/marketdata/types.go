package marketdata

import "time"

// RawQuote is the provider payload as fetched, beyond symbol identity an
// opaque bag of optional fields. Numeric fields are pointers because the
// provider omits what it does not know, and absent is not zero.
type RawQuote struct {
	Symbol             string    `json:"symbol"`
	LongName           string    `json:"longName,omitempty"`
	Currency           string    `json:"currency,omitempty"`
	Exchange           string    `json:"exchange,omitempty"`
	Sector             string    `json:"sector,omitempty"`
	Industry           string    `json:"industry,omitempty"`
	CurrentPrice       *float64  `json:"currentPrice,omitempty"`
	RegularMarketPrice *float64  `json:"regularMarketPrice,omitempty"`
	DividendYield      *float64  `json:"dividendYield,omitempty"`
	TrailingPE         *float64  `json:"trailingPE,omitempty"`
	PriceToBook        *float64  `json:"priceToBook,omitempty"`
	MarketCap          *float64  `json:"marketCap,omitempty"`
	SharesOutstanding  *float64  `json:"sharesOutstanding,omitempty"`
	ReturnOnEquity     *float64  `json:"returnOnEquity,omitempty"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// Snapshot is the normalized view consumers and the cache hold.
// DividendYield and ROE are percentages.
type Snapshot struct {
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	Exchange          string    `json:"exchange,omitempty"`
	Sector            string    `json:"sector,omitempty"`
	Industry          string    `json:"industry,omitempty"`
	DividendYield     *float64  `json:"dividend_yield,omitempty"`
	PERatio           *float64  `json:"pe_ratio,omitempty"`
	PBRatio           *float64  `json:"pb_ratio,omitempty"`
	CurrentPrice      *float64  `json:"current_price,omitempty"`
	MarketCap         *float64  `json:"market_cap,omitempty"`
	SharesOutstanding *float64  `json:"shares_outstanding,omitempty"`
	ROE               *float64  `json:"roe,omitempty"`
	Warnings          []Warning `json:"warnings,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// WarningLevel grades how much a corrected or suspicious field should
// worry the reader.
type WarningLevel string

const (
	LevelMinor    WarningLevel = "minor"
	LevelWarning  WarningLevel = "warning"
	LevelCritical WarningLevel = "critical"
)

// Warning records a normalization correction or a value kept under protest.
type Warning struct {
	Level   WarningLevel `json:"level"`
	Field   string       `json:"field"`
	Message string       `json:"message"`
}

// HasCritical reports whether any warning is critical.
func (s *Snapshot) HasCritical() bool {
	for _, w := range s.Warnings {
		if w.Level == LevelCritical {
			return true
		}
	}
	return false
}
