package scoring

import (
	"sort"

	"exam-engine/internal/domain"
)

const (
	keyListening = "listening"
	keyReading   = "reading"
	keyWriting   = "writing"
	keySpeaking  = "speaking"
)

var sectionScoreKeys = map[domain.SectionType]string{
	domain.SectionListening: keyListening,
	domain.SectionReading:   keyReading,
	domain.SectionWriting:   keyWriting,
	domain.SectionSpeaking:  keySpeaking,
}

// BuildScoreSummary aggregates persisted answers into a score summary. It only
// reads its inputs, so the same answers always produce the same summary.
func BuildScoreSummary(exam *domain.Exam, answers []*domain.AttemptAnswer) *domain.ScoreSummary {
	summary := &domain.ScoreSummary{Sections: make(map[int64]domain.SectionScore)}
	scored := make(map[int64][]float64)

	for _, a := range answers {
		bucket, ok := summary.Sections[a.SectionID]
		if !ok {
			bucket.SectionType = domain.SectionGeneral
			if s := exam.FindSection(a.SectionID); s != nil {
				bucket.SectionType = s.SectionType
			}
		}
		bucket.TotalQuestions++
		if a.IsCorrect != nil && *a.IsCorrect {
			bucket.CorrectCount++
			if a.Score != nil {
				bucket.EarnedScore += *a.Score
			}
		}
		if a.Score != nil {
			scored[a.SectionID] = append(scored[a.SectionID], *a.Score)
		}
		summary.Sections[a.SectionID] = bucket
	}

	sectionIDs := make([]int64, 0, len(summary.Sections))
	for id := range summary.Sections {
		sectionIDs = append(sectionIDs, id)
	}
	sort.Slice(sectionIDs, func(i, j int) bool { return sectionIDs[i] < sectionIDs[j] })

	banded := exam.ExamType.IsBanded()
	bands := make(map[string]float64)
	for _, id := range sectionIDs {
		bucket := summary.Sections[id]
		summary.Totals.TotalQuestions += bucket.TotalQuestions
		summary.Totals.TotalCorrect += bucket.CorrectCount
		summary.Totals.TotalScore += bucket.EarnedScore

		if !banded {
			continue
		}
		if band, ok := sectionBand(exam, bucket, scored[id]); ok {
			bucket.Band = &band
			summary.Sections[id] = bucket
			if key, ok := sectionScoreKeys[bucket.SectionType]; ok {
				bands[key] = band
			}
		}
	}

	if banded {
		summary.Bands = collectBands(bands)
	}
	return summary
}

func sectionBand(exam *domain.Exam, bucket domain.SectionScore, scores []float64) (float64, bool) {
	switch bucket.SectionType {
	case domain.SectionListening:
		return LookupBand(TableListening, bucket.CorrectCount)
	case domain.SectionReading:
		table := TableReadingAcademic
		if exam.ReadingVariant == domain.ReadingGeneral {
			table = TableReadingGeneral
		}
		return LookupBand(table, bucket.CorrectCount)
	case domain.SectionWriting, domain.SectionSpeaking:
		if len(scores) == 0 {
			return 0, false
		}
		total := 0.0
		for _, s := range scores {
			total += s
		}
		return RoundHalf(total / float64(len(scores))), true
	}
	return 0, false
}

func collectBands(bands map[string]float64) domain.BandSet {
	var set domain.BandSet
	pick := func(key string) *float64 {
		if v, ok := bands[key]; ok {
			return &v
		}
		return nil
	}
	set.Listening = pick(keyListening)
	set.Reading = pick(keyReading)
	set.Writing = pick(keyWriting)
	set.Speaking = pick(keySpeaking)

	var sum float64
	var n int
	for _, b := range []*float64{set.Listening, set.Reading, set.Writing, set.Speaking} {
		if b != nil {
			sum += *b
			n++
		}
	}
	if n > 0 {
		overall := RoundOverallBand(sum / float64(n))
		set.Overall = &overall
	}
	return set
}
