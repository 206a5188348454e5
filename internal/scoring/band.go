package scoring

import "math"

// BandRange maps an inclusive range of correct answers to a band.
type BandRange struct {
	Min  int
	Max  int
	Band float64
}

type BandTable []BandRange

// Lookup returns 0 when no range contains correctCount.
func (t BandTable) Lookup(correctCount int) float64 {
	for _, r := range t {
		if correctCount >= r.Min && correctCount <= r.Max {
			return r.Band
		}
	}
	return 0
}

const (
	TableListening       = "ielts.listening"
	TableReadingAcademic = "ielts.reading.academic"
	TableReadingGeneral  = "ielts.reading.general"
)

var ListeningBandTable = BandTable{
	{39, 40, 9}, {37, 38, 8.5}, {35, 36, 8}, {32, 34, 7.5}, {30, 31, 7},
	{26, 29, 6.5}, {23, 25, 6}, {18, 22, 5.5}, {16, 17, 5}, {13, 15, 4.5},
	{11, 12, 4}, {8, 10, 3.5}, {6, 7, 3}, {4, 5, 2.5}, {0, 3, 2},
}

var ReadingAcademicBandTable = BandTable{
	{39, 40, 9}, {37, 38, 8.5}, {35, 36, 8}, {33, 34, 7.5}, {30, 32, 7},
	{27, 29, 6.5}, {23, 26, 6}, {19, 22, 5.5}, {15, 18, 5}, {13, 14, 4.5},
	{10, 12, 4}, {8, 9, 3.5}, {6, 7, 3}, {4, 5, 2.5}, {0, 3, 2},
}

var ReadingGeneralBandTable = BandTable{
	{40, 40, 9}, {39, 39, 8.5}, {38, 38, 8}, {36, 37, 7.5}, {34, 35, 7},
	{32, 33, 6.5}, {30, 31, 6}, {27, 29, 5.5}, {23, 26, 5}, {19, 22, 4.5},
	{15, 18, 4}, {12, 14, 3.5}, {10, 11, 3}, {8, 9, 2.5}, {0, 7, 2},
}

var bandTables = map[string]BandTable{
	TableListening:       ListeningBandTable,
	TableReadingAcademic: ReadingAcademicBandTable,
	TableReadingGeneral:  ReadingGeneralBandTable,
}

// LookupBand looks correctCount up in a registered table.
func LookupBand(table string, correctCount int) (float64, bool) {
	t, ok := bandTables[table]
	if !ok {
		return 0, false
	}
	return t.Lookup(correctCount), true
}

// RoundHalf rounds to the nearest half band.
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

// RoundOverallBand applies the overall rounding rule: below .25 rounds down,
// below .75 rounds to the half, anything else rounds up.
func RoundOverallBand(avg float64) float64 {
	f := math.Floor(avg)
	d := avg - f
	switch {
	case d < 0.25:
		return f
	case d < 0.75:
		return f + 0.5
	default:
		return f + 1
	}
}
