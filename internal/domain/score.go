package domain

// SectionScore is the per-section entry of a score summary.
type SectionScore struct {
	SectionType    SectionType `json:"sectionType"`
	CorrectCount   int         `json:"correctCount"`
	TotalQuestions int         `json:"totalQuestions"`
	EarnedScore    float64     `json:"earnedScore"`
	Band           *float64    `json:"band,omitempty"`
}

type ScoreTotals struct {
	TotalQuestions int     `json:"totalQuestions"`
	TotalCorrect   int     `json:"totalCorrect"`
	TotalScore     float64 `json:"totalScore"`
}

// BandSet holds the per-skill bands; nil means no band.
type BandSet struct {
	Listening *float64 `json:"listening"`
	Reading   *float64 `json:"reading"`
	Writing   *float64 `json:"writing"`
	Speaking  *float64 `json:"speaking"`
	Overall   *float64 `json:"overall"`
}

type ScoreSummary struct {
	Sections map[int64]SectionScore `json:"sections"`
	Totals   ScoreTotals            `json:"totals"`
	Bands    BandSet                `json:"bands"`
}
