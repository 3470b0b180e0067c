package valuation

import (
	"time"

	"github.com/shopspring/decimal"

	"finresearch/internal/domain/quarter"
)

// Metric labels exposed to the research core
const (
	LabelMarketCap           = "market_cap"
	LabelEnterpriseValue     = "enterprise_value"
	LabelTrailingPE          = "trailing_pe"
	LabelForwardPE           = "forward_pe"
	LabelPEGRatio            = "peg_ratio"
	LabelPriceToSales        = "price_to_sales"
	LabelPriceToBook         = "price_to_book"
	LabelEnterpriseToRevenue = "enterprise_to_revenue"
	LabelEnterpriseToEBITDA  = "enterprise_to_ebitda"
)

// Units
const (
	UnitUSD      = "USD"
	UnitMultiple = "x"
)

// Snapshot is one quarter of valuation measures for a company.
// Nil fields were not reported for that quarter.
type Snapshot struct {
	Company             string           `ch:"company"`
	Year                uint16           `ch:"year"`
	Quarter             uint8            `ch:"quarter"`
	MarketCap           *decimal.Decimal `ch:"market_cap"`
	EnterpriseValue     *decimal.Decimal `ch:"enterprise_value"`
	TrailingPE          *decimal.Decimal `ch:"trailing_pe"`
	ForwardPE           *decimal.Decimal `ch:"forward_pe"`
	PEGRatio            *decimal.Decimal `ch:"peg_ratio"`
	PriceToSales        *decimal.Decimal `ch:"price_to_sales"`
	PriceToBook         *decimal.Decimal `ch:"price_to_book"`
	EnterpriseToRevenue *decimal.Decimal `ch:"enterprise_to_revenue"`
	EnterpriseToEBITDA  *decimal.Decimal `ch:"enterprise_to_ebitda"`
	UpdatedAt           time.Time        `ch:"updated_at"`
}

// Measure is one labelled value of a snapshot
type Measure struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Period returns the snapshot's quarter
func (s Snapshot) Period() quarter.Quarter {
	return quarter.Quarter{Year: int(s.Year), Q: int(s.Quarter)}
}

// Measures flattens the reported fields in a fixed label order
func (s Snapshot) Measures() []Measure {
	fields := []struct {
		label string
		unit  string
		value *decimal.Decimal
	}{
		{LabelMarketCap, UnitUSD, s.MarketCap},
		{LabelEnterpriseValue, UnitUSD, s.EnterpriseValue},
		{LabelTrailingPE, UnitMultiple, s.TrailingPE},
		{LabelForwardPE, UnitMultiple, s.ForwardPE},
		{LabelPEGRatio, UnitMultiple, s.PEGRatio},
		{LabelPriceToSales, UnitMultiple, s.PriceToSales},
		{LabelPriceToBook, UnitMultiple, s.PriceToBook},
		{LabelEnterpriseToRevenue, UnitMultiple, s.EnterpriseToRevenue},
		{LabelEnterpriseToEBITDA, UnitMultiple, s.EnterpriseToEBITDA},
	}

	out := make([]Measure, 0, len(fields))
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		out = append(out, Measure{Label: f.label, Value: f.value.InexactFloat64(), Unit: f.unit})
	}
	return out
}
