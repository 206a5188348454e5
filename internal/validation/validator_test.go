package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type questionPayload struct {
	QuestionType string   `json:"questionType" validate:"required,question_type"`
	ScoreWeight  *float64 `json:"scoreWeight" validate:"omitempty,gt=0"`
}

type sectionPayload struct {
	Title       string            `json:"title" validate:"required"`
	SectionType string            `json:"sectionType" validate:"omitempty,section_type"`
	Questions   []questionPayload `json:"questions" validate:"dive"`
}

type examPayload struct {
	Code     string           `json:"code" validate:"required,max=8"`
	ExamType string           `json:"examType" validate:"omitempty,exam_type"`
	Mode     string           `json:"mode" validate:"omitempty,attempt_mode"`
	Sections []sectionPayload `json:"sections" validate:"dive"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	weight := 2.0
	errs := v.Validate(&examPayload{
		Code:     "IELTS-1",
		ExamType: "IELTS",
		Mode:     "FULL",
		Sections: []sectionPayload{{Title: "Listening", SectionType: "LISTENING", Questions: []questionPayload{{QuestionType: "ESSAY", ScoreWeight: &weight}}}},
	})
	assert.Nil(t, errs)
}

func TestValidator_ReportsJSONPaths(t *testing.T) {
	v := NewValidator()
	weight := 0.0
	errs := v.Validate(&examPayload{
		Code:     "TOO-LONG-CODE",
		ExamType: "SAT",
		Mode:     "PARTIAL",
		Sections: []sectionPayload{{SectionType: "MATH", Questions: []questionPayload{{QuestionType: "ESSAY"}, {QuestionType: "DRAWING", ScoreWeight: &weight}}}},
	})
	require.NotEmpty(t, errs)

	byField := map[string]string{}
	for _, e := range errs {
		byField[e.Field] = e.Message
	}
	assert.Equal(t, "must be at most 8", byField["code"])
	assert.Equal(t, "must be one of IELTS, TOEIC, GENERAL", byField["examType"])
	assert.Equal(t, "must be FULL or SECTION", byField["mode"])
	assert.Equal(t, "field is required", byField["sections[0].title"])
	assert.Contains(t, byField, "sections[0].sectionType")
	assert.Contains(t, byField, "sections[0].questions[1].questionType")
	assert.Equal(t, "must be greater than 0", byField["sections[0].questions[1].scoreWeight"])
	assert.NotContains(t, byField, "sections[0].questions[0].questionType")
	assert.Contains(t, errs.Error(), "code: must be at most 8")
}
