package domain

import (
	"fmt"
	"strings"
)

// AverageDaysPerMonth approximates one month for expiry periods.
const AverageDaysPerMonth = 365.0 / 12.0

// ExpiryPeriod names one catalog duration after which earned points lapse.
type ExpiryPeriod string

// ExpiryPeriod catalog values.
const (
	ExpiryOneDay      ExpiryPeriod = "one_day"
	ExpiryOneWeek     ExpiryPeriod = "one_week"
	ExpiryTwoWeeks    ExpiryPeriod = "two_weeks"
	ExpiryOneMonth    ExpiryPeriod = "one_month"
	ExpiryTwoMonths   ExpiryPeriod = "two_months"
	ExpiryThreeMonths ExpiryPeriod = "three_months"
	ExpirySixMonths   ExpiryPeriod = "six_months"
	ExpiryOneYear     ExpiryPeriod = "one_year"
	ExpiryNever       ExpiryPeriod = "never"
	ExpiryCustom      ExpiryPeriod = "custom"
)

// customDays is the sentinel day count of ExpiryCustom.
const customDays = -1

type expiryEntry struct {
	period       ExpiryPeriod
	days         int64
	abbreviation string
}

// expiryCatalog is ordered; ExpiryPeriods returns it in this order.
var expiryCatalog = []expiryEntry{
	{ExpiryOneDay, 1, "1d"},
	{ExpiryOneWeek, 7, "1w"},
	{ExpiryTwoWeeks, 14, "2w"},
	{ExpiryOneMonth, roundDays(AverageDaysPerMonth), "1m"},
	{ExpiryTwoMonths, roundDays(AverageDaysPerMonth * 2), "2m"},
	{ExpiryThreeMonths, roundDays(AverageDaysPerMonth * 3), "3m"},
	{ExpirySixMonths, roundDays(AverageDaysPerMonth * 6), "6m"},
	{ExpiryOneYear, 365, "1y"},
	{ExpiryNever, 0, "∞"},
	{ExpiryCustom, customDays, "c"},
}

// roundDays rounds half up, so 182.5 becomes 183.
func roundDays(days float64) int64 {
	return int64(days + 0.5)
}

// ExpiryPeriods returns the catalog in declaration order.
func ExpiryPeriods() []ExpiryPeriod {
	out := make([]ExpiryPeriod, 0, len(expiryCatalog))
	for _, e := range expiryCatalog {
		out = append(out, e.period)
	}
	return out
}

func (p ExpiryPeriod) entry() (expiryEntry, bool) {
	for _, e := range expiryCatalog {
		if e.period == p {
			return e, true
		}
	}
	return expiryEntry{}, false
}

// Days returns the catalog day count; -1 for custom and unknown values.
func (p ExpiryPeriod) Days() int64 {
	e, ok := p.entry()
	if !ok {
		return customDays
	}
	return e.days
}

// Abbreviation returns the short display form, "c" for custom and unknown values.
func (p ExpiryPeriod) Abbreviation() string {
	e, ok := p.entry()
	if !ok {
		return "c"
	}
	return e.abbreviation
}

// String implements fmt.Stringer.
func (p ExpiryPeriod) String() string {
	return string(p)
}

// ClassifyExpiryPeriod returns the period whose day count equals days exactly, or ExpiryCustom.
func ClassifyExpiryPeriod(days int64) ExpiryPeriod {
	for _, e := range expiryCatalog {
		if e.days == days {
			return e.period
		}
	}
	return ExpiryCustom
}

// ParseExpiryPeriod resolves a period name, accepting "six_months", "SIX-MONTHS" and the abbreviation.
func ParseExpiryPeriod(raw string) (ExpiryPeriod, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "-", "_")
	for _, e := range expiryCatalog {
		if string(e.period) == name || e.abbreviation == name {
			return e.period, nil
		}
	}
	return "", fmt.Errorf("expiry period %q: %w", raw, ErrUnknownPeriod)
}
