// Package memory keeps exams, attempts and answers in process memory. It backs
// the "memory" database driver used for local runs and service tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"exam-engine/internal/domain"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type answerKey struct {
	attemptID  int64
	questionID int64
}

// Store implements the exam, attempt and answer repositories plus a
// transaction manager. Returned values are copies; callers may modify them.
type Store struct {
	mu        sync.RWMutex
	seq       int64
	exams     map[int64]*domain.Exam
	attempts  map[int64]*domain.ExamAttempt
	answers   map[int64]*domain.AttemptAnswer
	answerIDs map[answerKey]int64
}

var (
	_ domain.ExamRepository     = (*Store)(nil)
	_ domain.AttemptRepository  = (*Store)(nil)
	_ domain.AnswerRepository   = (*Store)(nil)
	_ domain.TransactionManager = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		exams:     make(map[int64]*domain.Exam),
		attempts:  make(map[int64]*domain.ExamAttempt),
		answers:   make(map[int64]*domain.AttemptAnswer),
		answerIDs: make(map[answerKey]int64),
	}
}

type journalKey struct{}

// journal collects the undo steps of the writes made inside one transaction.
type journal struct {
	undo []func()
}

// record registers how to restore a row before it is changed. Callers hold s.mu.
func record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// WithTransaction runs fn and, when it fails, restores every row fn wrote.
// Rows fn did not touch keep any concurrent change. Nested calls join the
// outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// recordAttempt saves the current state of a stored attempt for rollback.
func (s *Store) recordAttempt(ctx context.Context, a *domain.ExamAttempt) {
	prev := cloneAttempt(a)
	record(ctx, func() {
		if _, ok := s.attempts[prev.ID]; ok {
			s.attempts[prev.ID] = cloneAttempt(prev)
		}
	})
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func page(limit, offset, n int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end
}

// cloneExam deep-copies an exam through its JSON form, which keeps the grading variant.
func cloneExam(e *domain.Exam, withSections bool) (*domain.Exam, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to copy exam %d: %w", e.ID, err)
	}
	var out domain.Exam
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy exam %d: %w", e.ID, err)
	}
	if !withSections {
		out.Sections = nil
	}
	return &out, nil
}

func (s *Store) CreateExam(ctx context.Context, exam *domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.exams {
		if existing.Code == exam.Code {
			return domain.NewDuplicateExamCodeError(exam.Code)
		}
	}

	now := time.Now()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	exam.ID = s.nextID()
	for _, section := range exam.Sections {
		section.ID = s.nextID()
		section.ExamID = exam.ID
		for _, g := range section.Groups {
			g.ID = s.nextID()
			g.SectionID = section.ID
			for _, qg := range g.QuestionGroups {
				qg.ID = s.nextID()
				qg.SectionGroupID = g.ID
				for _, q := range qg.Questions {
					q.ID = s.nextID()
					q.QuestionGroupID = qg.ID
				}
			}
		}
	}

	stored, err := cloneExam(exam, true)
	if err != nil {
		return err
	}
	s.exams[exam.ID] = stored
	id := exam.ID
	record(ctx, func() { delete(s.exams, id) })
	return nil
}

func (s *Store) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	var found []string
	for _, e := range s.exams {
		if wanted[e.Code] {
			found = append(found, e.Code)
		}
	}
	sort.Strings(found)
	return found, nil
}

func (s *Store) GetExamByID(ctx context.Context, id int64) (*domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exams[id]
	if !ok {
		return nil, nil
	}
	return cloneExam(e, false)
}

func (s *Store) GetExamTree(ctx context.Context, id int64) (*domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exams[id]
	if !ok {
		return nil, nil
	}
	return cloneExam(e, true)
}

func (s *Store) ListExams(ctx context.Context, filter domain.ExamFilter) ([]*domain.Exam, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*domain.Exam
	for _, e := range s.exams {
		if filter.ExamType != nil && e.ExamType != *filter.ExamType {
			continue
		}
		if filter.IsPublished != nil && e.IsPublished != *filter.IsPublished {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Title), search) && !strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	start, end := page(filter.Limit, filter.Offset, len(matched))
	out := make([]*domain.Exam, 0, end-start)
	for _, e := range matched[start:end] {
		c, err := cloneExam(e, false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, len(matched), nil
}

func (s *Store) UpdateExam(ctx context.Context, exam *domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.exams[exam.ID]
	if !ok {
		return domain.NewExamNotFoundError(exam.ID)
	}
	prev := *stored
	record(ctx, func() {
		if cur, ok := s.exams[prev.ID]; ok {
			*cur = prev
		}
	})
	exam.UpdatedAt = time.Now()
	stored.Code = exam.Code
	stored.Title = exam.Title
	stored.Description = exam.Description
	stored.ExamType = exam.ExamType
	stored.ReadingVariant = exam.ReadingVariant
	stored.ThumbnailURL = exam.ThumbnailURL
	stored.IsPublished = exam.IsPublished
	stored.Metadata = exam.Metadata
	stored.UpdatedAt = exam.UpdatedAt
	return nil
}

func (s *Store) DeleteExam(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[id]
	if !ok {
		return domain.NewExamNotFoundError(id)
	}
	for attemptID, a := range s.attempts {
		if a.ExamID != id {
			continue
		}
		for key, answerID := range s.answerIDs {
			if key.attemptID == attemptID {
				answer := s.answers[answerID]
				record(ctx, func() {
					s.answerIDs[key] = answer.ID
					s.answers[answer.ID] = answer
				})
				delete(s.answers, answerID)
				delete(s.answerIDs, key)
			}
		}
		record(ctx, func() { s.attempts[a.ID] = a })
		delete(s.attempts, attemptID)
	}
	record(ctx, func() { s.exams[exam.ID] = exam })
	delete(s.exams, id)
	return nil
}

func cloneAttempt(a *domain.ExamAttempt) *domain.ExamAttempt {
	out := *a
	out.SectionProgress = a.CopyProgress()
	if a.TargetSectionID != nil {
		id := *a.TargetSectionID
		out.TargetSectionID = &id
	}
	if a.ScoreSummary != nil {
		summary := *a.ScoreSummary
		summary.Sections = make(map[int64]domain.SectionScore, len(a.ScoreSummary.Sections))
		for k, v := range a.ScoreSummary.Sections {
			summary.Sections[k] = v
		}
		out.ScoreSummary = &summary
	}
	if a.TotalScore != nil {
		total := *a.TotalScore
		out.TotalScore = &total
	}
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		out.SubmittedAt = &at
	}
	return &out
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = now
	}
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	attempt.Version = 0
	attempt.ID = s.nextID()
	if attempt.SectionProgress == nil {
		attempt.SectionProgress = map[int64]domain.SectionProgress{}
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	id := attempt.ID
	record(ctx, func() { delete(s.attempts, id) })
	return nil
}

func (s *Store) GetAttemptByID(ctx context.Context, id int64) (*domain.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	return cloneAttempt(a), nil
}

func sameTarget(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func newestFirst(attempts []*domain.ExamAttempt) {
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.After(attempts[j].StartedAt)
		}
		return attempts[i].ID > attempts[j].ID
	})
}

func (s *Store) FindInProgressAttempt(ctx context.Context, userID string, examID int64, mode domain.AttemptMode, targetSectionID *int64) (*domain.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.ExamAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.ExamID == examID && a.Mode == mode &&
			a.Status == domain.AttemptInProgress && sameTarget(a.TargetSectionID, targetSectionID) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	newestFirst(matched)
	return cloneAttempt(matched[0]), nil
}

func (s *Store) ListAttemptsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.AttemptListing, int, error) {
	return s.SearchAttempts(ctx, domain.AttemptFilter{UserID: userID, Limit: limit, Offset: offset})
}

func (s *Store) ListAttemptsByUserAndExam(ctx context.Context, userID string, examID int64) ([]*domain.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.ExamAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.ExamID == examID {
			matched = append(matched, a)
		}
	}
	newestFirst(matched)
	out := make([]*domain.ExamAttempt, 0, len(matched))
	for _, a := range matched {
		out = append(out, cloneAttempt(a))
	}
	return out, nil
}

func matchesFilter(a *domain.ExamAttempt, exam *domain.Exam, f domain.AttemptFilter) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.ExamID != nil && a.ExamID != *f.ExamID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		if !strings.Contains(strings.ToLower(exam.Title), search) && !strings.Contains(strings.ToLower(exam.Code), search) {
			return false
		}
	}
	if f.StartDate != nil && a.StartedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && a.StartedAt.After(*f.EndDate) {
		return false
	}
	if f.MinScore != nil && (a.TotalScore == nil || *a.TotalScore < *f.MinScore) {
		return false
	}
	if f.MaxScore != nil && (a.TotalScore == nil || *a.TotalScore > *f.MaxScore) {
		return false
	}
	return true
}

func (s *Store) SearchAttempts(ctx context.Context, filter domain.AttemptFilter) ([]*domain.AttemptListing, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.ExamAttempt
	for _, a := range s.attempts {
		exam, ok := s.exams[a.ExamID]
		if ok && matchesFilter(a, exam, filter) {
			matched = append(matched, a)
		}
	}
	newestFirst(matched)

	start, end := page(filter.Limit, filter.Offset, len(matched))
	out := make([]*domain.AttemptListing, 0, end-start)
	for _, a := range matched[start:end] {
		exam := s.exams[a.ExamID]
		out = append(out, &domain.AttemptListing{
			Attempt:   cloneAttempt(a),
			ExamCode:  exam.Code,
			ExamTitle: exam.Title,
			ExamType:  exam.ExamType,
		})
	}
	return out, len(matched), nil
}

// versioned returns the stored attempt when its version matches, mirroring a
// conditional UPDATE that matched one row.
func (s *Store) versioned(attemptID, expectedVersion int64) (*domain.ExamAttempt, error) {
	a, ok := s.attempts[attemptID]
	if !ok || a.Version != expectedVersion {
		return nil, domain.NewConcurrentUpdateError(attemptID)
	}
	return a, nil
}

func (s *Store) SaveSectionProgress(ctx context.Context, attemptID int64, progress map[int64]domain.SectionProgress, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.versioned(attemptID, expectedVersion)
	if err != nil {
		return err
	}
	s.recordAttempt(ctx, a)
	copied := make(map[int64]domain.SectionProgress, len(progress))
	for k, v := range progress {
		copied[k] = v
	}
	a.SectionProgress = copied
	a.Version++
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) MarkSubmitted(ctx context.Context, attemptID int64, summary *domain.ScoreSummary, submittedAt time.Time, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.versioned(attemptID, expectedVersion)
	if err != nil {
		return err
	}
	if a.Status != domain.AttemptInProgress {
		return domain.NewConcurrentUpdateError(attemptID)
	}
	s.recordAttempt(ctx, a)
	a.Status = domain.AttemptSubmitted
	a.SubmittedAt = &submittedAt
	setSummary(a, summary)
	a.Version++
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SaveScoreSummary(ctx context.Context, attemptID int64, summary *domain.ScoreSummary, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.versioned(attemptID, expectedVersion)
	if err != nil {
		return err
	}
	s.recordAttempt(ctx, a)
	setSummary(a, summary)
	a.Version++
	a.UpdatedAt = time.Now()
	return nil
}

func setSummary(a *domain.ExamAttempt, summary *domain.ScoreSummary) {
	if summary == nil {
		a.ScoreSummary, a.TotalScore = nil, nil
		return
	}
	a.ScoreSummary = cloneAttempt(&domain.ExamAttempt{ScoreSummary: summary}).ScoreSummary
	total := summary.Totals.TotalScore
	a.TotalScore = &total
}

func (s *Store) BumpVersion(ctx context.Context, attemptID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.attempts[attemptID]; ok {
		s.recordAttempt(ctx, a)
		a.Version++
		a.UpdatedAt = time.Now()
	}
	return nil
}

func cloneAnswer(a *domain.AttemptAnswer) *domain.AttemptAnswer {
	out := *a
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		out.IsCorrect = &v
	}
	if a.Score != nil {
		v := *a.Score
		out.Score = &v
	}
	if a.AIFeedback != nil {
		v := *a.AIFeedback
		out.AIFeedback = &v
	}
	return &out
}

func (s *Store) UpsertAnswers(ctx context.Context, answers []*domain.AttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, a := range answers {
		if a.AnsweredAt.IsZero() {
			a.AnsweredAt = now
		}
		a.UpdatedAt = now
		key := answerKey{attemptID: a.AttemptID, questionID: a.QuestionID}
		if id, ok := s.answerIDs[key]; ok {
			a.ID = id
			prev := cloneAnswer(s.answers[id])
			record(ctx, func() { s.answers[prev.ID] = prev })
		} else {
			a.ID = s.nextID()
			s.answerIDs[key] = a.ID
			id := a.ID
			record(ctx, func() {
				delete(s.answers, id)
				delete(s.answerIDs, key)
			})
		}
		stored := cloneAnswer(a)
		stored.AIFeedback = nil
		s.answers[a.ID] = stored
	}
	return nil
}

func (s *Store) ListAnswersByAttempt(ctx context.Context, attemptID int64) ([]*domain.AttemptAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AttemptAnswer
	for _, a := range s.answers {
		if a.AttemptID == attemptID {
			out = append(out, cloneAnswer(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveGradingOutcomes(ctx context.Context, outcomes []domain.GradingOutcome) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	applied := 0
	for _, o := range outcomes {
		a, ok := s.answers[o.AnswerID]
		if !ok || !a.UpdatedAt.Equal(o.AnswerUpdatedAt) {
			continue
		}
		prev := cloneAnswer(a)
		record(ctx, func() {
			if _, ok := s.answers[prev.ID]; ok {
				s.answers[prev.ID] = prev
			}
		})
		score, correct, feedback := o.Score, o.IsCorrect, o.AIFeedback
		a.Score = &score
		a.IsCorrect = &correct
		a.AIFeedback = &feedback
		a.UpdatedAt = now
		applied++
	}
	return applied, nil
}
