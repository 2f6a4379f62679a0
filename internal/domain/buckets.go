/**
 * @description
 * Time-bucketing rules for the spend ledger. A posting timestamp is folded
 * into the calendar period for the requested granularity: day = calendar day,
 * week = ISO week (Monday start), month = calendar month. The reference
 * timezone is configurable service-wide and defaults to UTC.
 */

package domain

import (
	"fmt"
	"time"
)

// Granularity selects the spend-ledger bucket size.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// AllGranularities lists every bucket size a posting accumulates into.
var AllGranularities = []Granularity{GranularityDaily, GranularityWeekly, GranularityMonthly}

// ParseGranularity validates a caller-supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// BucketStart returns the start of the calendar period containing t for the
// given granularity, evaluated in loc.
func BucketStart(g Granularity, t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch g {
	case GranularityWeekly:
		// ISO weeks start on Monday; Go counts Sunday as 0.
		weekday := int(midnight.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return midnight.AddDate(0, 0, -(weekday - 1))
	case GranularityMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return midnight
	}
}
