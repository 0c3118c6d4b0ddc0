/*
dates.go - Vendor date serialization

The vendor API only accepts DD/MM/YYYY date parameters. Operator input
arrives as ISO dates (or whatever the dashboard sends), so ParseDateInput
accepts vendor format verbatim, converts any parseable date, and falls
back to today when nothing parses.
*/
package linisco

import (
	"regexp"
	"time"
)

const vendorDateLayout = "02/01/2006"

var vendorDatePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// inputLayouts are tried in order when normalizing operator-supplied dates.
var inputLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatVendorDate renders a time in the vendor's required format.
func FormatVendorDate(t time.Time) string {
	return t.Format(vendorDateLayout)
}

// ParseDateInput normalizes an operator-supplied date string to the
// vendor format. Vendor-format input passes through verbatim; any other
// parseable date is converted; unparseable input falls back to now.
func ParseDateInput(s string, now time.Time) string {
	if vendorDatePattern.MatchString(s) {
		return s
	}
	if t, err := ParseDay(s); err == nil {
		return FormatVendorDate(t)
	}
	return FormatVendorDate(now)
}

// ParseDay parses an operator-supplied date into a day-precision time.
// Used for validating historical-load ranges before any network call.
func ParseDay(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range inputLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if t, err := time.Parse(vendorDateLayout, s); err == nil {
		return t, nil
	} else {
		lastErr = err
	}
	return time.Time{}, lastErr
}
