package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestQuestion_JSONKeepsGradingVariant(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantObj bool
		weight  float64
	}{
		{"objective", Question{ID: 1, QuestionType: QuestionMultipleChoice, Grading: NewGrading(QuestionMultipleChoice, "B", 2)}, true, 2},
		{"objective default weight", Question{ID: 2, QuestionType: QuestionFillInBlank, Grading: NewGrading(QuestionFillInBlank, "cat", 0)}, true, 1},
		{"subjective", Question{ID: 3, QuestionType: QuestionEssay, Grading: NewGrading(QuestionEssay, nil, 3)}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.q)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got Question
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			_, isObj := got.Objective()
			if isObj != tt.wantObj {
				t.Errorf("Objective() = %v, want %v", isObj, tt.wantObj)
			}
			if got.ScoreWeight() != tt.weight {
				t.Errorf("ScoreWeight() = %v, want %v", got.ScoreWeight(), tt.weight)
			}
		})
	}
}

func TestExam_QuestionIndex(t *testing.T) {
	exam := &Exam{Sections: []*Section{
		{ID: 10, Groups: []*SectionGroup{{QuestionGroups: []*QuestionGroup{{Questions: []*Question{{ID: 1}, {ID: 2}}}}}}},
		{ID: 20, Groups: []*SectionGroup{{QuestionGroups: []*QuestionGroup{{Questions: []*Question{{ID: 3}}}}}}},
	}}

	index := exam.QuestionIndex()
	if len(index) != 3 {
		t.Fatalf("len(index) = %d, want 3", len(index))
	}
	if index[3].Section.ID != 20 {
		t.Errorf("question 3 located in section %d, want 20", index[3].Section.ID)
	}
	if exam.FindSection(30) != nil {
		t.Error("FindSection(30) should be nil")
	}
	if got := len(exam.FindSection(10).Questions()); got != 2 {
		t.Errorf("section 10 has %d questions, want 2", got)
	}
}

func TestExamPatch_Apply(t *testing.T) {
	title := "Renamed"
	published := true
	variant := ReadingGeneral
	exam := &Exam{Code: "A-1", Title: "Old", Description: "kept"}

	ExamPatch{Title: &title, IsPublished: &published, ReadingVariant: &variant}.Apply(exam)

	if exam.Title != "Renamed" || !exam.IsPublished || exam.ReadingVariant != ReadingGeneral {
		t.Errorf("patch not applied: %+v", exam)
	}
	if exam.Code != "A-1" || exam.Description != "kept" {
		t.Errorf("unset fields changed: %+v", exam)
	}
}

func TestParseReadingVariant(t *testing.T) {
	for in, want := range map[string]ReadingVariant{"GENERAL": ReadingGeneral, "ACADEMIC": ReadingAcademic, "": ReadingAcademic, "other": ReadingAcademic} {
		if got := ParseReadingVariant(in); got != want {
			t.Errorf("ParseReadingVariant(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestAttemptAnswer_HasPayload(t *testing.T) {
	tests := []struct {
		payload interface{}
		want    bool
	}{
		{nil, false},
		{"", false},
		{"text", true},
		{[]interface{}{}, false},
		{[]interface{}{"A"}, true},
		{map[string]interface{}{"url": "x"}, true},
		{float64(0), true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.payload), func(t *testing.T) {
			a := &AttemptAnswer{Payload: tt.payload}
			if got := a.HasPayload(); got != tt.want {
				t.Errorf("HasPayload() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExamAttempt_Progress(t *testing.T) {
	a := &ExamAttempt{SectionProgress: map[int64]SectionProgress{1: {Status: SectionCompleted}}}
	if !a.SectionCompleted(1) || a.SectionCompleted(2) {
		t.Error("unexpected SectionCompleted result")
	}
	cp := a.CopyProgress()
	cp[2] = SectionProgress{Status: SectionCompleted}
	if a.SectionCompleted(2) {
		t.Error("CopyProgress must not share the map")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAttemptIncompleteError([]int64{4}))
	if !HasCode(err, ErrAttemptIncomplete) {
		t.Error("HasCode should see through wrapping")
	}
	if HasCode(errors.New("plain"), ErrAttemptIncomplete) {
		t.Error("plain errors have no code")
	}

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatal("expected a DomainError")
	}
	if ids, _ := domainErr.Context["missingSectionIds"].([]int64); len(ids) != 1 || ids[0] != 4 {
		t.Errorf("missingSectionIds = %v", domainErr.Context["missingSectionIds"])
	}
}
