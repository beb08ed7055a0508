// Package invoice defines the human-readable invoice number format:
// GKK + two-digit year + two-digit month + four-digit sequence, e.g.
// GKK25010001 for the first sale of January 2025. Sequence reservation
// itself happens inside the storage transaction that persists the sale.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const Prefix = "GKK"

// MaxSequence is the highest sequence a single period can hold; the 9999th
// sale of a month is the last one that fits the fixed-width format.
const MaxSequence = 9999

// Period returns the YYMM key for t, e.g. "2501".
func Period(t time.Time) string {
	return t.UTC().Format("0601")
}

// Number formats the invoice number for the given time and sequence.
func Number(t time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", Prefix, Period(t), seq)
}

// Sequence extracts the numeric suffix from an invoice number.
func Sequence(number string) (int, error) {
	if len(number) != len(Prefix)+8 || !strings.HasPrefix(number, Prefix) {
		return 0, fmt.Errorf("malformed invoice number %q", number)
	}
	for _, c := range number[len(Prefix):] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("malformed invoice number %q", number)
		}
	}
	return strconv.Atoi(number[len(number)-4:])
}
