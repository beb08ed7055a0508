package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNumberFormat(t *testing.T) {
	jan := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "GKK25010001", Number(jan, 1))
	require.Equal(t, "GKK25019999", Number(jan, MaxSequence))

	dec := time.Date(2031, time.December, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "GKK31120042", Number(dec, 42))
}

func TestPeriodUsesUTC(t *testing.T) {
	// 23:30 on Jan 31 in UTC+7 is already February there, but the period
	// key is derived from UTC.
	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2025, time.February, 1, 5, 30, 0, 0, loc)
	require.Equal(t, "2501", Period(local))
}

func TestSequenceRoundTrip(t *testing.T) {
	now := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	for _, seq := range []int{1, 17, 250, MaxSequence} {
		got, err := Sequence(Number(now, seq))
		require.NoError(t, err)
		require.Equal(t, seq, got)
	}
}

func TestSequenceRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "GKK2501", "INV25010001", "GKK250100010", "GKKxxxx0001", "GKK2501000x"} {
		_, err := Sequence(raw)
		require.Error(t, err, raw)
	}
}
