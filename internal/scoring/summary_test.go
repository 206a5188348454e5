package scoring

import (
	"encoding/json"
	"testing"

	"exam-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func answer(sectionID, questionID int64, correct *bool, score *float64) *domain.AttemptAnswer {
	return &domain.AttemptAnswer{SectionID: sectionID, QuestionID: questionID, IsCorrect: correct, Score: score}
}

func ieltsExam(variant domain.ReadingVariant) *domain.Exam {
	return &domain.Exam{
		ID:             1,
		ExamType:       domain.ExamTypeIELTS,
		ReadingVariant: variant,
		Sections: []*domain.Section{
			{ID: 1, SectionType: domain.SectionListening},
			{ID: 2, SectionType: domain.SectionReading},
			{ID: 3, SectionType: domain.SectionWriting},
			{ID: 4, SectionType: domain.SectionSpeaking},
		},
	}
}

func TestBuildScoreSummary_ListeningScenario(t *testing.T) {
	exam := &domain.Exam{ExamType: domain.ExamTypeIELTS, Sections: []*domain.Section{{ID: 9, SectionType: domain.SectionListening}}}
	answers := []*domain.AttemptAnswer{
		answer(9, 1, boolPtr(true), floatPtr(1)),
		answer(9, 2, boolPtr(false), floatPtr(0)),
		answer(9, 3, boolPtr(true), floatPtr(1)),
		answer(9, 4, nil, floatPtr(0)),
		answer(9, 5, boolPtr(true), floatPtr(1)),
	}

	summary := BuildScoreSummary(exam, answers)

	section := summary.Sections[9]
	assert.Equal(t, domain.SectionListening, section.SectionType)
	assert.Equal(t, 3, section.CorrectCount)
	assert.Equal(t, 5, section.TotalQuestions)
	assert.Equal(t, 3.0, section.EarnedScore)
	require.NotNil(t, section.Band)
	assert.Equal(t, ListeningBandTable.Lookup(3), *section.Band)

	assert.Equal(t, domain.ScoreTotals{TotalQuestions: 5, TotalCorrect: 3, TotalScore: 3}, summary.Totals)
	require.NotNil(t, summary.Bands.Listening)
	require.NotNil(t, summary.Bands.Overall)
	assert.Equal(t, 2.0, *summary.Bands.Overall)
	assert.Nil(t, summary.Bands.Reading)
}

func TestBuildScoreSummary_ReadingVariantSelectsTable(t *testing.T) {
	var answers []*domain.AttemptAnswer
	for i := int64(1); i <= 30; i++ {
		answers = append(answers, answer(2, i, boolPtr(true), floatPtr(1)))
	}

	academic := BuildScoreSummary(ieltsExam(domain.ReadingAcademic), answers)
	general := BuildScoreSummary(ieltsExam(domain.ReadingGeneral), answers)

	assert.Equal(t, 7.0, *academic.Bands.Reading)
	assert.Equal(t, 6.0, *general.Bands.Reading)
}

func TestBuildScoreSummary_SubjectiveBandsAndOverall(t *testing.T) {
	answers := []*domain.AttemptAnswer{
		answer(3, 1, boolPtr(true), floatPtr(6)),
		answer(3, 2, boolPtr(true), floatPtr(7)),
		answer(4, 3, nil, nil),
	}

	summary := BuildScoreSummary(ieltsExam(domain.ReadingAcademic), answers)

	require.NotNil(t, summary.Bands.Writing)
	assert.Equal(t, 6.5, *summary.Bands.Writing)
	assert.Nil(t, summary.Bands.Speaking, "speaking has no scored answers yet")
	assert.Nil(t, summary.Sections[4].Band)
	assert.Equal(t, 6.5, *summary.Bands.Overall)
	assert.Equal(t, 13.0, summary.Totals.TotalScore)
}

func TestBuildScoreSummary_NonBandedExam(t *testing.T) {
	exam := &domain.Exam{ExamType: domain.ExamTypeGeneral, Sections: []*domain.Section{{ID: 1, SectionType: domain.SectionListening}}}
	summary := BuildScoreSummary(exam, []*domain.AttemptAnswer{answer(1, 1, boolPtr(true), floatPtr(2))})

	assert.Nil(t, summary.Sections[1].Band)
	assert.Equal(t, domain.BandSet{}, summary.Bands)
	assert.Equal(t, 2.0, summary.Totals.TotalScore)
}

func TestBuildScoreSummary_Idempotent(t *testing.T) {
	exam := ieltsExam(domain.ReadingGeneral)
	answers := []*domain.AttemptAnswer{
		answer(1, 1, boolPtr(true), floatPtr(1)),
		answer(2, 2, boolPtr(false), floatPtr(0)),
		answer(3, 3, boolPtr(true), floatPtr(5.5)),
		answer(4, 4, boolPtr(false), floatPtr(4)),
	}

	first, err := json.Marshal(BuildScoreSummary(exam, answers))
	require.NoError(t, err)
	second, err := json.Marshal(BuildScoreSummary(exam, answers))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
