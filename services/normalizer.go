package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Price formats accepted by PriceParserFor.
const (
	PriceFormatMultiplier = "multiplier"
	PriceFormatStrict     = "strict"
	PriceFormatDigits     = "digits"
)

const (
	billion = 1_000_000_000
	million = 1_000_000
)

var (
	// numberRunRegexp captures the first number with thousand dots and a decimal comma.
	numberRunRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// digitRunRegexp captures a bare run of digits.
	digitRunRegexp = regexp.MustCompile(`\d+`)

	// Multiplier tokens that must not touch other letters, e.g. "1,5 M" or "2B".
	billionTokenRegexp = regexp.MustCompile(`(?:^|[^a-z])(?:miliar|b)(?:[^a-z]|$)`)
	millionTokenRegexp = regexp.MustCompile(`(?:^|[^a-z])(?:juta|m)(?:[^a-z]|$)`)
)

// ParsePrice converts locale-formatted price text such as "Rp 1,5 Miliar" or
// "850 Juta" into base currency units. Thousand-separator dots are dropped
// and a decimal comma becomes a decimal point. The multiplier is picked by
// substring: "miliar" or any "b" means 10^9, checked before "juta" or any
// "m" for 10^6. Returns nil when no number can be parsed or the result does
// not fit in an int64.
//
// The number must start with a digit, so punctuation before it is skipped:
// "Rp. 1,5 Miliar" yields 1.5e9. Scrapers that matched "[\d,.]+" from the
// first dot or comma returned nil for that input.
func ParsePrice(text string) *int64 {
	return parseScaledPrice(text, func(lower string) float64 {
		switch {
		case strings.Contains(lower, "miliar") || strings.Contains(lower, "b"):
			return billion
		case strings.Contains(lower, "juta") || strings.Contains(lower, "m"):
			return million
		}
		return 1
	})
}

// ParsePriceStrict is ParsePrice with multiplier words required to stand
// alone, so "/bulan" or "Rumah" no longer scale the price.
func ParsePriceStrict(text string) *int64 {
	return parseScaledPrice(text, func(lower string) float64 {
		switch {
		case billionTokenRegexp.MatchString(lower):
			return billion
		case millionTokenRegexp.MatchString(lower):
			return million
		}
		return 1
	})
}

func parseScaledPrice(text string, multiplier func(lower string) float64) *int64 {
	run := numberRunRegexp.FindString(text)
	if run == "" {
		return nil
	}

	run = strings.ReplaceAll(run, ".", "")
	run = strings.ReplaceAll(run, ",", ".")
	value, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return nil
	}

	scaled := math.Trunc(value * multiplier(strings.ToLower(text)))
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if scaled >= math.MaxInt64 || math.IsNaN(scaled) {
		return nil
	}
	n := int64(scaled)
	return &n
}

// ParseFullPrice joins every digit in the text into one integer, for sites
// that print the full amount ("Rp 1.250.000.000").
func ParseFullPrice(text string) *int64 {
	runs := digitRunRegexp.FindAllString(text, -1)
	if len(runs) == 0 {
		return nil
	}
	n, err := strconv.ParseInt(strings.Join(runs, ""), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// PriceParserFor returns the price parser registered for format. An empty
// format selects the multiplier parser.
func PriceParserFor(format string) (func(string) *int64, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", PriceFormatMultiplier:
		return ParsePrice, nil
	case PriceFormatStrict:
		return ParsePriceStrict, nil
	case PriceFormatDigits:
		return ParseFullPrice, nil
	}
	return nil, fmt.Errorf("normalizer: unknown price format %q", format)
}

// ParseSizeSqm returns the first integer in text ("120 m²" -> 120).
func ParseSizeSqm(text string) *int64 {
	run := digitRunRegexp.FindString(text)
	if run == "" {
		return nil
	}
	n, err := strconv.ParseInt(run, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// ParseCount returns the first digit run of a room count verbatim.
func ParseCount(text string) *string {
	run := digitRunRegexp.FindString(text)
	if run == "" {
		return nil
	}
	return &run
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
