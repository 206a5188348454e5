package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/repository/models"

	"github.com/jmoiron/sqlx"
)

var answerColumns = []string{"id", "attempt_id", "section_id", "question_id", "answer", "is_correct",
	"score", "ai_feedback", "answered_at", "updated_at"}

// upsertAnswerQuery is keyed on the (attempt_id, question_id) unique constraint.
// A resubmission replaces the payload and clears any earlier AI feedback.
const upsertAnswerQuery = `MERGE INTO exam_attempt_answers t
	USING (SELECT :1 AS attempt_id, :2 AS question_id FROM DUAL) s
	ON (t.attempt_id = s.attempt_id AND t.question_id = s.question_id)
	WHEN MATCHED THEN UPDATE SET
		t.section_id = :3, t.answer = :4, t.is_correct = :5, t.score = :6,
		t.ai_feedback = NULL, t.answered_at = :7, t.updated_at = :8
	WHEN NOT MATCHED THEN INSERT
		(id, attempt_id, section_id, question_id, answer, is_correct, score, answered_at, updated_at)
		VALUES (exam_attempt_answers_seq.NEXTVAL, :9, :10, :11, :12, :13, :14, :15, :16)`

// answerRepository implements domain.AnswerRepository using sqlx.
type answerRepository struct {
	db *sqlx.DB
}

// NewAnswerRepository creates a new answer repository.
func NewAnswerRepository(db *sqlx.DB) domain.AnswerRepository {
	return &answerRepository{db: db}
}

func toDomainAnswer(m *models.ExamAttemptAnswer) *domain.AttemptAnswer {
	a := &domain.AttemptAnswer{
		ID:         m.ID,
		AttemptID:  m.AttemptID,
		SectionID:  m.SectionID,
		QuestionID: m.QuestionID,
		AnsweredAt: m.AnsweredAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.Answer.Valid {
		a.Payload = m.Answer.Data
	}
	if m.IsCorrect.Valid {
		correct := m.IsCorrect.Int64 == 1
		a.IsCorrect = &correct
	}
	if m.Score.Valid {
		score := m.Score.Float64
		a.Score = &score
	}
	if m.AIFeedback.Valid {
		feedback := m.AIFeedback.Data
		a.AIFeedback = &feedback
	}
	return a
}

func fromDomainAnswer(a *domain.AttemptAnswer) *models.ExamAttemptAnswer {
	m := &models.ExamAttemptAnswer{
		ID:         a.ID,
		AttemptID:  a.AttemptID,
		SectionID:  a.SectionID,
		QuestionID: a.QuestionID,
		AnsweredAt: a.AnsweredAt,
		UpdatedAt:  a.UpdatedAt,
	}
	if a.Payload != nil {
		m.Answer = models.NewJSONText(a.Payload)
	}
	if a.IsCorrect != nil {
		m.IsCorrect = sql.NullInt64{Int64: int64(boolToNumber(*a.IsCorrect)), Valid: true}
	}
	if a.Score != nil {
		m.Score = sql.NullFloat64{Float64: *a.Score, Valid: true}
	}
	if a.AIFeedback != nil {
		m.AIFeedback = models.NewJSONText(*a.AIFeedback)
	}
	return m
}

// UpsertAnswers merges every answer and then reads back the row ids per attempt.
func (r *answerRepository) UpsertAnswers(ctx context.Context, answers []*domain.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	exec := GetExecutor(ctx, r.db)
	now := time.Now()

	byAttempt := make(map[int64][]*domain.AttemptAnswer)
	var attemptOrder []int64
	for _, a := range answers {
		if a.AnsweredAt.IsZero() {
			a.AnsweredAt = now
		}
		a.UpdatedAt = now
		m := fromDomainAnswer(a)
		if _, err := exec.ExecContext(ctx, upsertAnswerQuery,
			m.AttemptID, m.QuestionID,
			m.SectionID, m.Answer, m.IsCorrect, m.Score, m.AnsweredAt, m.UpdatedAt,
			m.AttemptID, m.SectionID, m.QuestionID, m.Answer, m.IsCorrect, m.Score, m.AnsweredAt, m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert answer for question %d: %w", a.QuestionID, err)
		}
		if _, seen := byAttempt[a.AttemptID]; !seen {
			attemptOrder = append(attemptOrder, a.AttemptID)
		}
		byAttempt[a.AttemptID] = append(byAttempt[a.AttemptID], a)
	}

	for _, attemptID := range attemptOrder {
		var keys []struct {
			ID         int64 `db:"ID"`
			QuestionID int64 `db:"QUESTION_ID"`
		}
		if err := exec.SelectContext(ctx, &keys, "SELECT id, question_id FROM exam_attempt_answers WHERE attempt_id = :1", attemptID); err != nil {
			return fmt.Errorf("failed to read answer ids of attempt %d: %w", attemptID, err)
		}
		idByQuestion := make(map[int64]int64, len(keys))
		for _, k := range keys {
			idByQuestion[k.QuestionID] = k.ID
		}
		for _, a := range byAttempt[attemptID] {
			a.ID = idByQuestion[a.QuestionID]
		}
	}
	return nil
}

func (r *answerRepository) ListAnswersByAttempt(ctx context.Context, attemptID int64) ([]*domain.AttemptAnswer, error) {
	var rows []models.ExamAttemptAnswer
	query := fmt.Sprintf("SELECT %s FROM exam_attempt_answers WHERE attempt_id = :1 ORDER BY id", strings.Join(answerColumns, ", "))
	if err := GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, attemptID); err != nil {
		return nil, fmt.Errorf("failed to list answers of attempt %d: %w", attemptID, err)
	}
	answers := make([]*domain.AttemptAnswer, 0, len(rows))
	for i := range rows {
		answers = append(answers, toDomainAnswer(&rows[i]))
	}
	return answers, nil
}

// SaveGradingOutcomes writes AI scores and feedback onto answer rows that
// still hold the graded version. Rows resubmitted meanwhile are left alone.
func (r *answerRepository) SaveGradingOutcomes(ctx context.Context, outcomes []domain.GradingOutcome) (int, error) {
	exec := GetExecutor(ctx, r.db)
	now := time.Now()
	query := "UPDATE exam_attempt_answers SET score = :1, is_correct = :2, ai_feedback = :3, updated_at = :4 WHERE id = :5 AND updated_at = :6"
	applied := 0
	for _, o := range outcomes {
		res, err := exec.ExecContext(ctx, query,
			o.Score, boolToNumber(o.IsCorrect), models.NewJSONText(o.AIFeedback), now, o.AnswerID, o.AnswerUpdatedAt,
		)
		if err != nil {
			return applied, fmt.Errorf("failed to save grading outcome for answer %d: %w", o.AnswerID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return applied, fmt.Errorf("failed to check grading outcome for answer %d: %w", o.AnswerID, err)
		}
		applied += int(rows)
	}
	return applied, nil
}
