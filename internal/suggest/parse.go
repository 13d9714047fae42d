package suggest

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"spendlens/internal/fault"
	"spendlens/internal/money"
	"spendlens/internal/warehouse"
)

// ParseFindings turns the capability's final text into validated findings.
// The text is untrusted: fences are stripped, the first top-level JSON array
// is decoded, entries missing a required field are dropped, and monetary
// fields are coerced to non-negative 2-decimal values. Only unusable text,
// meaning no array at all or an array that does not decode, is a parse
// error; an empty array is a valid answer.
func ParseFindings(text string, minSavings decimal.Decimal, maxFindings int) ([]warehouse.Finding, error) {
	arr, ok := firstJSONArray(stripFences(text))
	if !ok {
		return nil, fault.New(fault.ParseError, "no JSON array in capability response (%d bytes)", len(text))
	}

	var raws []rawFinding
	if err := json.Unmarshal([]byte(arr), &raws); err != nil {
		return nil, fault.Wrap(fault.ParseError, err, "decode findings array")
	}

	findings := []warehouse.Finding{}
	for _, r := range raws {
		f, ok := r.validate(minSavings)
		if !ok {
			continue
		}
		findings = append(findings, f)
		if len(findings) == maxFindings {
			break
		}
	}
	return findings, nil
}

// rawFinding mirrors Finding with pointer fields so absent keys are
// distinguishable from zero values.
type rawFinding struct {
	ItemName            *string  `json:"item_name"`
	OriginalPrice       *float64 `json:"original_price"`
	OriginalMerchant    *string  `json:"original_merchant"`
	AlternativeMerchant *string  `json:"alternative_merchant"`
	AlternativePrice    *float64 `json:"alternative_price"`
	ShippingCost        *float64 `json:"shipping_cost"`
	TaxEstimate         *float64 `json:"tax_estimate"`
	TotalLandedCost     *float64 `json:"total_landed_cost"`
	TotalSavings        *float64 `json:"total_savings"`
	URL                 *string  `json:"url"`
	Notes               *string  `json:"notes"`
	Channel             *string  `json:"channel"`
	Confidence          *float64 `json:"confidence"`
}

func (r rawFinding) validate(minSavings decimal.Decimal) (warehouse.Finding, bool) {
	if r.ItemName == nil || strings.TrimSpace(*r.ItemName) == "" ||
		r.OriginalPrice == nil ||
		r.OriginalMerchant == nil || strings.TrimSpace(*r.OriginalMerchant) == "" ||
		r.AlternativeMerchant == nil || strings.TrimSpace(*r.AlternativeMerchant) == "" ||
		r.AlternativePrice == nil ||
		r.TotalLandedCost == nil ||
		r.TotalSavings == nil ||
		r.URL == nil || strings.TrimSpace(*r.URL) == "" {
		return warehouse.Finding{}, false
	}

	f := warehouse.Finding{
		ItemName:            strings.TrimSpace(*r.ItemName),
		OriginalPrice:       money.Coerce(*r.OriginalPrice),
		OriginalMerchant:    strings.TrimSpace(*r.OriginalMerchant),
		AlternativeMerchant: strings.TrimSpace(*r.AlternativeMerchant),
		AlternativePrice:    money.Coerce(*r.AlternativePrice),
		ShippingCost:        decimal.Zero,
		TaxEstimate:         decimal.Zero,
		TotalLandedCost:     money.Coerce(*r.TotalLandedCost),
		TotalSavings:        money.Coerce(*r.TotalSavings),
		URL:                 strings.TrimSpace(*r.URL),
		Channel:             warehouse.ChannelOnline,
		Confidence:          0.5,
	}
	if r.ShippingCost != nil {
		f.ShippingCost = money.Coerce(*r.ShippingCost)
	}
	if r.TaxEstimate != nil {
		f.TaxEstimate = money.Coerce(*r.TaxEstimate)
	}
	if r.Notes != nil {
		f.Notes = strings.TrimSpace(*r.Notes)
	}
	if r.Channel != nil && strings.EqualFold(strings.TrimSpace(*r.Channel), warehouse.ChannelLocal) {
		f.Channel = warehouse.ChannelLocal
	}
	if r.Confidence != nil {
		f.Confidence = clampUnit(*r.Confidence)
	}

	if f.TotalSavings.LessThan(minSavings) {
		return warehouse.Finding{}, false
	}
	return f, true
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// stripFences removes markdown code fences around the payload, tolerating a
// language tag on the opening fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// firstJSONArray extracts the first balanced array that opens onto an object
// or closes immediately, skipping bracketed prose such as citations.
func firstJSONArray(s string) (string, bool) {
	for from := 0; from < len(s); {
		rel := strings.IndexByte(s[from:], '[')
		if rel < 0 {
			return "", false
		}
		start := from + rel
		if opensArray(s, start) {
			if end, ok := matchBracket(s, start); ok {
				return s[start : end+1], true
			}
		}
		from = start + 1
	}
	return "", false
}

// opensArray reports whether the '[' at i starts `[{` or `[]` modulo
// whitespace.
func opensArray(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// matchBracket returns the index of the ']' closing the '[' at start,
// ignoring brackets inside string literals.
func matchBracket(s string, start int) (int, bool) {
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
