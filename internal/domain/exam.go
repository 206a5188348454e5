package domain

import (
	"context"
	"encoding/json"
	"time"
)

type ExamType string

const (
	ExamTypeIELTS   ExamType = "IELTS"
	ExamTypeTOEIC   ExamType = "TOEIC"
	ExamTypeGeneral ExamType = "GENERAL"
)

func (t ExamType) Valid() bool {
	switch t {
	case ExamTypeIELTS, ExamTypeTOEIC, ExamTypeGeneral:
		return true
	}
	return false
}

// IsBanded reports whether attempts on this exam type receive band scores.
func (t ExamType) IsBanded() bool {
	return t == ExamTypeIELTS
}

type SectionType string

const (
	SectionListening SectionType = "LISTENING"
	SectionReading   SectionType = "READING"
	SectionWriting   SectionType = "WRITING"
	SectionSpeaking  SectionType = "SPEAKING"
	SectionGeneral   SectionType = "GENERAL"
)

func (t SectionType) Valid() bool {
	switch t {
	case SectionListening, SectionReading, SectionWriting, SectionSpeaking, SectionGeneral:
		return true
	}
	return false
}

// ReadingVariant selects the reading band table of an IELTS exam.
type ReadingVariant string

const (
	ReadingAcademic ReadingVariant = "ACADEMIC"
	ReadingGeneral  ReadingVariant = "GENERAL"
)

// ParseReadingVariant falls back to ACADEMIC for anything but GENERAL.
func ParseReadingVariant(s string) ReadingVariant {
	if ReadingVariant(s) == ReadingGeneral {
		return ReadingGeneral
	}
	return ReadingAcademic
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionFillInBlank    QuestionType = "FILL_IN_BLANK"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE_NOT_GIVEN"
	QuestionMatching       QuestionType = "MATCHING"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionEssay          QuestionType = "ESSAY"
	QuestionSpeakingPrompt QuestionType = "SPEAKING_PROMPT"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionFillInBlank, QuestionTrueFalse, QuestionMatching,
		QuestionShortAnswer, QuestionEssay, QuestionSpeakingPrompt:
		return true
	}
	return false
}

// IsOpenEnded reports whether answers of this type are sent to the AI grader.
func (t QuestionType) IsOpenEnded() bool {
	return t == QuestionEssay || t == QuestionSpeakingPrompt
}

const CurrentMetadataVersion = 1

// Metadata is the extensible attribute bag attached to an exam at import time.
type Metadata struct {
	Version    int                    `json:"version"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type Exam struct {
	ID                   int64          `json:"id"`
	Code                 string         `json:"code"`
	Title                string         `json:"title"`
	Description          string         `json:"description,omitempty"`
	ExamType             ExamType       `json:"examType"`
	ReadingVariant       ReadingVariant `json:"readingVariant"`
	TotalDurationSeconds int            `json:"totalDurationSeconds"`
	ThumbnailURL         string         `json:"thumbnailUrl,omitempty"`
	IsPublished          bool           `json:"isPublished"`
	Metadata             Metadata       `json:"metadata"`
	Sections             []*Section     `json:"sections,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// FindSection returns the section with the given id, or nil.
func (e *Exam) FindSection(sectionID int64) *Section {
	for _, s := range e.Sections {
		if s.ID == sectionID {
			return s
		}
	}
	return nil
}

// LocatedQuestion is a question together with the section it lives in.
type LocatedQuestion struct {
	Question *Question
	Section  *Section
}

// QuestionIndex maps every question id of the exam to its question and section.
func (e *Exam) QuestionIndex() map[int64]LocatedQuestion {
	idx := make(map[int64]LocatedQuestion)
	for _, s := range e.Sections {
		for _, q := range s.Questions() {
			idx[q.ID] = LocatedQuestion{Question: q, Section: s}
		}
	}
	return idx
}

type Section struct {
	ID              int64           `json:"id"`
	ExamID          int64           `json:"examId"`
	Title           string          `json:"title"`
	SectionType     SectionType     `json:"sectionType"`
	DisplayOrder    int             `json:"displayOrder"`
	DurationSeconds int             `json:"durationSeconds"`
	Instructions    string          `json:"instructions,omitempty"`
	AudioURL        string          `json:"audioUrl,omitempty"`
	Groups          []*SectionGroup `json:"groups,omitempty"`
}

// Questions flattens the section tree in presentation order.
func (s *Section) Questions() []*Question {
	var out []*Question
	for _, g := range s.Groups {
		for _, qg := range g.QuestionGroups {
			out = append(out, qg.Questions...)
		}
	}
	return out
}

type SectionGroup struct {
	ID             int64            `json:"id"`
	SectionID      int64            `json:"sectionId"`
	GroupType      string           `json:"groupType"`
	Title          string           `json:"title,omitempty"`
	Description    string           `json:"description,omitempty"`
	Content        string           `json:"content,omitempty"`
	ResourceURL    string           `json:"resourceUrl,omitempty"`
	DisplayOrder   int              `json:"displayOrder"`
	QuestionGroups []*QuestionGroup `json:"questionGroups,omitempty"`
}

type QuestionGroup struct {
	ID             int64       `json:"id"`
	SectionGroupID int64       `json:"sectionGroupId"`
	Title          string      `json:"title,omitempty"`
	Description    string      `json:"description,omitempty"`
	Content        string      `json:"content,omitempty"`
	ResourceURL    string      `json:"resourceUrl,omitempty"`
	DisplayOrder   int         `json:"displayOrder"`
	Questions      []*Question `json:"questions,omitempty"`
}

type Question struct {
	ID              int64           `json:"id"`
	QuestionGroupID int64           `json:"questionGroupId"`
	QuestionType    QuestionType    `json:"questionType"`
	Prompt          string          `json:"prompt"`
	Options         json.RawMessage `json:"options,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	DisplayOrder    int             `json:"displayOrder"`
	Grading         Grading         `json:"-"`
}

// Grading is either ObjectiveGrading or SubjectiveGrading.
type Grading interface {
	isGrading()
}

// ObjectiveGrading is auto-graded by comparing against CorrectAnswer.
type ObjectiveGrading struct {
	CorrectAnswer interface{}
	ScoreWeight   float64
}

// SubjectiveGrading is graded later by the AI grading collaborator.
type SubjectiveGrading struct {
	Kind QuestionType
}

func (ObjectiveGrading) isGrading()  {}
func (SubjectiveGrading) isGrading() {}

// NewGrading resolves the grading variant of a question: a non-null correct
// answer makes it objective.
func NewGrading(questionType QuestionType, correctAnswer interface{}, scoreWeight float64) Grading {
	if correctAnswer != nil {
		if scoreWeight <= 0 {
			scoreWeight = 1
		}
		return ObjectiveGrading{CorrectAnswer: correctAnswer, ScoreWeight: scoreWeight}
	}
	return SubjectiveGrading{Kind: questionType}
}

// Objective returns the objective grading of the question, if it has one.
func (q *Question) Objective() (ObjectiveGrading, bool) {
	g, ok := q.Grading.(ObjectiveGrading)
	return g, ok
}

// ScoreWeight is 1 for subjective questions.
func (q *Question) ScoreWeight() float64 {
	if g, ok := q.Objective(); ok {
		return g.ScoreWeight
	}
	return 1
}

type questionJSON struct {
	ID              int64           `json:"id"`
	QuestionGroupID int64           `json:"questionGroupId"`
	QuestionType    QuestionType    `json:"questionType"`
	Prompt          string          `json:"prompt"`
	Options         json.RawMessage `json:"options,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	DisplayOrder    int             `json:"displayOrder"`
	Objective       bool            `json:"objective"`
	CorrectAnswer   interface{}     `json:"correctAnswer,omitempty"`
	ScoreWeight     float64         `json:"scoreWeight"`
}

// MarshalJSON keeps the grading variant so cached trees round-trip.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:              q.ID,
		QuestionGroupID: q.QuestionGroupID,
		QuestionType:    q.QuestionType,
		Prompt:          q.Prompt,
		Options:         q.Options,
		Explanation:     q.Explanation,
		DisplayOrder:    q.DisplayOrder,
		ScoreWeight:     q.ScoreWeight(),
	}
	if g, ok := q.Objective(); ok {
		out.Objective = true
		out.CorrectAnswer = g.CorrectAnswer
	}
	return json.Marshal(out)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = Question{
		ID:              in.ID,
		QuestionGroupID: in.QuestionGroupID,
		QuestionType:    in.QuestionType,
		Prompt:          in.Prompt,
		Options:         in.Options,
		Explanation:     in.Explanation,
		DisplayOrder:    in.DisplayOrder,
	}
	if in.Objective {
		q.Grading = ObjectiveGrading{CorrectAnswer: in.CorrectAnswer, ScoreWeight: in.ScoreWeight}
	} else {
		q.Grading = SubjectiveGrading{Kind: in.QuestionType}
	}
	return nil
}

// ExamFilter drives the paginated exam listing.
type ExamFilter struct {
	ExamType    *ExamType
	IsPublished *bool
	Search      string
	Limit       int
	Offset      int
}

// ExamPatch carries the fields an admin may change on an existing exam.
type ExamPatch struct {
	Title          *string
	Description    *string
	ThumbnailURL   *string
	IsPublished    *bool
	Code           *string
	ExamType       *ExamType
	ReadingVariant *ReadingVariant
	Metadata       *Metadata
}

// Apply copies the set fields onto e.
func (p ExamPatch) Apply(e *Exam) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ThumbnailURL != nil {
		e.ThumbnailURL = *p.ThumbnailURL
	}
	if p.IsPublished != nil {
		e.IsPublished = *p.IsPublished
	}
	if p.Code != nil {
		e.Code = *p.Code
	}
	if p.ExamType != nil {
		e.ExamType = *p.ExamType
	}
	if p.ReadingVariant != nil {
		e.ReadingVariant = *p.ReadingVariant
	}
	if p.Metadata != nil {
		e.Metadata = *p.Metadata
	}
}

// ExamRepository persists exam trees.
type ExamRepository interface {
	// CreateExam stores the whole tree and assigns ids to every node.
	CreateExam(ctx context.Context, exam *Exam) error
	// ExistingCodes returns the subset of codes that already exist.
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)
	// GetExamByID returns the exam without its sections, or nil when it does not exist.
	GetExamByID(ctx context.Context, id int64) (*Exam, error)
	// GetExamTree returns the exam with its full section tree, or nil when it does not exist.
	GetExamTree(ctx context.Context, id int64) (*Exam, error)
	ListExams(ctx context.Context, filter ExamFilter) ([]*Exam, int, error)
	UpdateExam(ctx context.Context, exam *Exam) error
	// DeleteExam removes the exam and everything below it, including attempts and answers.
	DeleteExam(ctx context.Context, id int64) error
}

// TransactionManager runs fn inside a single database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
