package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandTables_DocumentedValues(t *testing.T) {
	cases := []struct {
		table   string
		correct int
		want    float64
	}{
		{TableListening, 40, 9},
		{TableListening, 33, 7.5},
		{TableListening, 23, 6},
		{TableListening, 3, 2},
		{TableReadingAcademic, 30, 7},
		{TableReadingAcademic, 26, 6},
		{TableReadingAcademic, 13, 4.5},
		{TableReadingGeneral, 40, 9},
		{TableReadingGeneral, 39, 8.5},
		{TableReadingGeneral, 30, 6},
		{TableReadingGeneral, 7, 2},
	}
	for _, c := range cases {
		got, ok := LookupBand(c.table, c.correct)
		require.True(t, ok)
		assert.Equal(t, c.want, got, "%s with %d correct", c.table, c.correct)
	}
}

func TestBandTables_MonotonicOverDomain(t *testing.T) {
	for _, key := range []string{TableListening, TableReadingAcademic, TableReadingGeneral} {
		t.Run(key, func(t *testing.T) {
			prev := -1.0
			for n := 0; n <= 40; n++ {
				band, ok := LookupBand(key, n)
				require.True(t, ok)
				assert.GreaterOrEqual(t, band, prev, "band must not decrease at %d", n)
				assert.NotZero(t, band, "every count in 0..40 must be covered")
				prev = band
			}
		})
	}
}

func TestBandTable_OutOfDomain(t *testing.T) {
	assert.Equal(t, 0.0, ListeningBandTable.Lookup(41))
	assert.Equal(t, 0.0, ListeningBandTable.Lookup(-1))

	_, ok := LookupBand("toeic.listening", 10)
	assert.False(t, ok)
}

func TestRoundOverallBand(t *testing.T) {
	tests := []struct {
		avg  float64
		want float64
	}{
		{6.1, 6},
		{6.3, 6.5},
		{6.8, 7},
		{6.0, 6},
		{6.25, 6.5},
		{6.75, 7},
		{6.5, 6.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundOverallBand(tt.avg), "avg %.2f", tt.avg)
	}
}

func TestRoundHalf(t *testing.T) {
	assert.Equal(t, 6.5, RoundHalf(6.3))
	assert.Equal(t, 6.0, RoundHalf(6.2))
	assert.Equal(t, 7.0, RoundHalf(6.75))
}
