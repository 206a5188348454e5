package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/repository/models"
	"exam-engine/internal/util"

	"github.com/jmoiron/sqlx"
)

var attemptColumns = []string{"id", "user_id", "exam_id", "attempt_mode", "status", "target_section_id",
	"section_progress", "score_summary", "total_score", "started_at", "submitted_at", "version",
	"created_at", "updated_at"}

const attemptListingFrom = "exam_attempts a JOIN exams e ON a.exam_id = e.id"

// attemptListingColumns selects attempt columns plus the exam headline.
var attemptListingColumns = qualify("a", attemptColumns) +
	", e.code AS exam_code, e.title AS exam_title, e.exam_type AS exam_type"

// attemptRepository implements domain.AttemptRepository using sqlx.
type attemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new attempt repository.
func NewAttemptRepository(db *sqlx.DB) domain.AttemptRepository {
	return &attemptRepository{db: db}
}

func toDomainAttempt(m *models.ExamAttempt) *domain.ExamAttempt {
	if m == nil {
		return nil
	}
	a := &domain.ExamAttempt{
		ID:              m.ID,
		UserID:          m.UserID,
		ExamID:          m.ExamID,
		Mode:            domain.AttemptMode(m.Mode),
		Status:          domain.AttemptStatus(m.Status),
		SectionProgress: map[int64]domain.SectionProgress{},
		StartedAt:       m.StartedAt,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.TargetSectionID.Valid {
		id := m.TargetSectionID.Int64
		a.TargetSectionID = &id
	}
	if m.SectionProgress.Valid && m.SectionProgress.Data != nil {
		a.SectionProgress = m.SectionProgress.Data
	}
	if m.ScoreSummary.Valid {
		summary := m.ScoreSummary.Data
		a.ScoreSummary = &summary
	}
	if m.TotalScore.Valid {
		total := m.TotalScore.Float64
		a.TotalScore = &total
	}
	if m.SubmittedAt.Valid {
		submittedAt := m.SubmittedAt.Time
		a.SubmittedAt = &submittedAt
	}
	return a
}

func fromDomainAttempt(a *domain.ExamAttempt) *models.ExamAttempt {
	m := &models.ExamAttempt{
		ID:        a.ID,
		UserID:    a.UserID,
		ExamID:    a.ExamID,
		Mode:      string(a.Mode),
		Status:    string(a.Status),
		StartedAt: a.StartedAt,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.TargetSectionID != nil {
		m.TargetSectionID = sql.NullInt64{Int64: *a.TargetSectionID, Valid: true}
	}
	progress := a.SectionProgress
	if progress == nil {
		progress = map[int64]domain.SectionProgress{}
	}
	m.SectionProgress = models.NewJSONText(progress)
	if a.ScoreSummary != nil {
		m.ScoreSummary = models.NewJSONText(*a.ScoreSummary)
	}
	if a.TotalScore != nil {
		m.TotalScore = sql.NullFloat64{Float64: *a.TotalScore, Valid: true}
	}
	if a.SubmittedAt != nil {
		m.SubmittedAt = util.TimeToNullTime(*a.SubmittedAt)
	}
	return m
}

func toDomainListing(m *models.ExamAttemptListing) *domain.AttemptListing {
	return &domain.AttemptListing{
		Attempt:   toDomainAttempt(&m.ExamAttempt),
		ExamCode:  m.ExamCode,
		ExamTitle: m.ExamTitle,
		ExamType:  domain.ExamType(m.ExamType),
	}
}

// CreateAttempt inserts a new attempt with version 0.
func (r *attemptRepository) CreateAttempt(ctx context.Context, attempt *domain.ExamAttempt) error {
	exec := GetExecutor(ctx, r.db)
	now := time.Now()
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = now
	}
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	attempt.Version = 0

	id, err := nextSequenceValue(ctx, exec, "exam_attempts_seq")
	if err != nil {
		return err
	}
	attempt.ID = id

	m := fromDomainAttempt(attempt)
	query := fmt.Sprintf("INSERT INTO exam_attempts (%s) VALUES (%s)", strings.Join(attemptColumns, ", "), bindList(1, len(attemptColumns)))
	if _, err := exec.ExecContext(ctx, query,
		m.ID, m.UserID, m.ExamID, m.Mode, m.Status, m.TargetSectionID,
		m.SectionProgress, m.ScoreSummary, m.TotalScore, m.StartedAt, m.SubmittedAt, m.Version,
		m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create exam attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) GetAttemptByID(ctx context.Context, id int64) (*domain.ExamAttempt, error) {
	var m models.ExamAttempt
	query := fmt.Sprintf("SELECT %s FROM exam_attempts WHERE id = :1", strings.Join(attemptColumns, ", "))
	if err := GetExecutor(ctx, r.db).GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt by ID %d: %w", id, err)
	}
	return toDomainAttempt(&m), nil
}

// FindInProgressAttempt returns the newest IN_PROGRESS attempt matching the key, or nil.
func (r *attemptRepository) FindInProgressAttempt(ctx context.Context, userID string, examID int64, mode domain.AttemptMode, targetSectionID *int64) (*domain.ExamAttempt, error) {
	var where whereBuilder
	where.add("user_id = :%d", userID)
	where.add("exam_id = :%d", examID)
	where.add("attempt_mode = :%d", string(mode))
	where.add("status = :%d", string(domain.AttemptInProgress))
	if targetSectionID != nil {
		where.add("target_section_id = :%d", *targetSectionID)
	} else {
		where.add("target_section_id IS NULL")
	}

	var rows []models.ExamAttempt
	query := fmt.Sprintf("SELECT %s FROM exam_attempts %s ORDER BY started_at DESC, id DESC",
		strings.Join(attemptColumns, ", "), where.sql())
	if err := GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("failed to find in-progress attempt: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toDomainAttempt(&rows[0]), nil
}

func (r *attemptRepository) ListAttemptsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.AttemptListing, int, error) {
	return r.SearchAttempts(ctx, domain.AttemptFilter{UserID: userID, Limit: limit, Offset: offset})
}

func (r *attemptRepository) ListAttemptsByUserAndExam(ctx context.Context, userID string, examID int64) ([]*domain.ExamAttempt, error) {
	var rows []models.ExamAttempt
	query := fmt.Sprintf("SELECT %s FROM exam_attempts WHERE user_id = :1 AND exam_id = :2 ORDER BY started_at DESC, id DESC",
		strings.Join(attemptColumns, ", "))
	if err := GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, userID, examID); err != nil {
		return nil, fmt.Errorf("failed to list attempts of user %s for exam %d: %w", userID, examID, err)
	}
	attempts := make([]*domain.ExamAttempt, 0, len(rows))
	for i := range rows {
		attempts = append(attempts, toDomainAttempt(&rows[i]))
	}
	return attempts, nil
}

// buildAttemptFilter turns an AttemptFilter into where clauses over attemptListingFrom.
func buildAttemptFilter(filter domain.AttemptFilter) whereBuilder {
	var where whereBuilder
	if filter.UserID != "" {
		where.add("a.user_id = :%d", filter.UserID)
	}
	if filter.ExamID != nil {
		where.add("a.exam_id = :%d", *filter.ExamID)
	}
	if filter.Status != nil {
		where.add("a.status = :%d", string(*filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		where.add("(LOWER(e.title) LIKE :%d OR LOWER(e.code) LIKE :%d)", pattern, pattern)
	}
	if filter.StartDate != nil {
		where.add("a.started_at >= :%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		where.add("a.started_at <= :%d", *filter.EndDate)
	}
	if filter.MinScore != nil {
		where.add("a.total_score >= :%d", *filter.MinScore)
	}
	if filter.MaxScore != nil {
		where.add("a.total_score <= :%d", *filter.MaxScore)
	}
	return where
}

// SearchAttempts returns one page of attempts, newest first, and the total match count.
func (r *attemptRepository) SearchAttempts(ctx context.Context, filter domain.AttemptFilter) ([]*domain.AttemptListing, int, error) {
	where := buildAttemptFilter(filter)
	resultsQuery, countQuery := pageQueries(attemptListingColumns, attemptListingFrom, where.sql(),
		"a.started_at DESC, a.id DESC", filter.Limit, filter.Offset)

	exec := GetExecutor(ctx, r.db)
	var rows []models.ExamAttemptListing
	if err := exec.SelectContext(ctx, &rows, resultsQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search attempts: %w. Query: %s", err, resultsQuery)
	}
	var total int
	if err := exec.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	listings := make([]*domain.AttemptListing, 0, len(rows))
	for i := range rows {
		listings = append(listings, toDomainListing(&rows[i]))
	}
	return listings, total, nil
}

// execVersioned runs a conditional update and maps "no row matched" to CONCURRENT_UPDATE.
func (r *attemptRepository) execVersioned(ctx context.Context, attemptID int64, query string, args ...interface{}) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attempt %d: %w", attemptID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for attempt %d: %w", attemptID, err)
	}
	if affected == 0 {
		return domain.NewConcurrentUpdateError(attemptID)
	}
	return nil
}

func (r *attemptRepository) SaveSectionProgress(ctx context.Context, attemptID int64, progress map[int64]domain.SectionProgress, expectedVersion int64) error {
	query := `UPDATE exam_attempts SET section_progress = :1, version = version + 1, updated_at = :2
		WHERE id = :3 AND version = :4`
	return r.execVersioned(ctx, attemptID, query,
		models.NewJSONText(progress), time.Now(), attemptID, expectedVersion)
}

// MarkSubmitted finalizes an IN_PROGRESS attempt.
func (r *attemptRepository) MarkSubmitted(ctx context.Context, attemptID int64, summary *domain.ScoreSummary, submittedAt time.Time, expectedVersion int64) error {
	query := `UPDATE exam_attempts SET status = :1, score_summary = :2, total_score = :3, submitted_at = :4,
		version = version + 1, updated_at = :5
		WHERE id = :6 AND version = :7 AND status = :8`
	summaryText, totalScore := summaryColumns(summary)
	return r.execVersioned(ctx, attemptID, query,
		string(domain.AttemptSubmitted), summaryText, totalScore, submittedAt,
		time.Now(), attemptID, expectedVersion, string(domain.AttemptInProgress))
}

func (r *attemptRepository) SaveScoreSummary(ctx context.Context, attemptID int64, summary *domain.ScoreSummary, expectedVersion int64) error {
	query := `UPDATE exam_attempts SET score_summary = :1, total_score = :2, version = version + 1, updated_at = :3
		WHERE id = :4 AND version = :5`
	summaryText, totalScore := summaryColumns(summary)
	return r.execVersioned(ctx, attemptID, query, summaryText, totalScore, time.Now(), attemptID, expectedVersion)
}

func (r *attemptRepository) BumpVersion(ctx context.Context, attemptID int64) error {
	query := "UPDATE exam_attempts SET version = version + 1, updated_at = :1 WHERE id = :2"
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, time.Now(), attemptID); err != nil {
		return fmt.Errorf("failed to bump version of attempt %d: %w", attemptID, err)
	}
	return nil
}

func summaryColumns(summary *domain.ScoreSummary) (models.JSONText[domain.ScoreSummary], sql.NullFloat64) {
	if summary == nil {
		return models.JSONText[domain.ScoreSummary]{}, sql.NullFloat64{}
	}
	return models.NewJSONText(*summary), sql.NullFloat64{Float64: summary.Totals.TotalScore, Valid: true}
}
