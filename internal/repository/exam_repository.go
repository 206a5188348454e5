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

var (
	examColumns = []string{"id", "code", "title", "description", "exam_type", "reading_variant",
		"total_duration_seconds", "thumbnail_url", "is_published", "metadata", "created_at", "updated_at"}
	sectionColumns = []string{"id", "exam_id", "title", "section_type", "display_order",
		"duration_seconds", "instructions", "audio_url"}
	sectionGroupColumns = []string{"id", "section_id", "group_type", "title", "description",
		"content", "resource_url", "display_order"}
	questionGroupColumns = []string{"id", "section_group_id", "title", "description", "content",
		"resource_url", "display_order"}
	questionColumns = []string{"id", "question_group_id", "question_type", "prompt", "options",
		"is_objective", "correct_answer", "score_weight", "explanation", "display_order"}
)

// examRepository implements domain.ExamRepository using sqlx on Oracle.
type examRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates a new exam repository.
func NewExamRepository(db *sqlx.DB) domain.ExamRepository {
	return &examRepository{db: db}
}

func toDomainExam(m *models.Exam) *domain.Exam {
	if m == nil {
		return nil
	}
	exam := &domain.Exam{
		ID:                   m.ID,
		Code:                 m.Code,
		Title:                m.Title,
		Description:          m.Description.String,
		ExamType:             domain.ExamType(m.ExamType),
		ReadingVariant:       domain.ParseReadingVariant(m.ReadingVariant),
		TotalDurationSeconds: m.TotalDurationSeconds,
		ThumbnailURL:         m.ThumbnailURL.String,
		IsPublished:          m.IsPublished == 1,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if m.Metadata.Valid {
		exam.Metadata = m.Metadata.Data
	}
	return exam
}

func fromDomainExam(e *domain.Exam) *models.Exam {
	return &models.Exam{
		ID:                   e.ID,
		Code:                 e.Code,
		Title:                e.Title,
		Description:          util.StringToNullString(e.Description),
		ExamType:             string(e.ExamType),
		ReadingVariant:       string(domain.ParseReadingVariant(string(e.ReadingVariant))),
		TotalDurationSeconds: e.TotalDurationSeconds,
		ThumbnailURL:         util.StringToNullString(e.ThumbnailURL),
		IsPublished:          boolToNumber(e.IsPublished),
		Metadata:             models.NewJSONText(e.Metadata),
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

func toDomainSection(m *models.ExamSection) *domain.Section {
	return &domain.Section{
		ID:              m.ID,
		ExamID:          m.ExamID,
		Title:           m.Title,
		SectionType:     domain.SectionType(m.SectionType),
		DisplayOrder:    m.DisplayOrder,
		DurationSeconds: m.DurationSeconds,
		Instructions:    m.Instructions.String,
		AudioURL:        m.AudioURL.String,
	}
}

func toDomainSectionGroup(m *models.ExamSectionGroup) *domain.SectionGroup {
	return &domain.SectionGroup{
		ID:           m.ID,
		SectionID:    m.SectionID,
		GroupType:    m.GroupType,
		Title:        m.Title.String,
		Description:  m.Description.String,
		Content:      m.Content.String,
		ResourceURL:  m.ResourceURL.String,
		DisplayOrder: m.DisplayOrder,
	}
}

func toDomainQuestionGroup(m *models.ExamQuestionGroup) *domain.QuestionGroup {
	return &domain.QuestionGroup{
		ID:             m.ID,
		SectionGroupID: m.SectionGroupID,
		Title:          m.Title.String,
		Description:    m.Description.String,
		Content:        m.Content.String,
		ResourceURL:    m.ResourceURL.String,
		DisplayOrder:   m.DisplayOrder,
	}
}

func toDomainQuestion(m *models.ExamQuestion) *domain.Question {
	q := &domain.Question{
		ID:              m.ID,
		QuestionGroupID: m.QuestionGroupID,
		QuestionType:    domain.QuestionType(m.QuestionType),
		Prompt:          m.Prompt.String,
		Explanation:     m.Explanation.String,
		DisplayOrder:    m.DisplayOrder,
	}
	if m.Options.Valid {
		q.Options = m.Options.Data
	}
	if m.IsObjective == 1 {
		q.Grading = domain.ObjectiveGrading{CorrectAnswer: m.CorrectAnswer.Data, ScoreWeight: m.ScoreWeight}
	} else {
		q.Grading = domain.SubjectiveGrading{Kind: q.QuestionType}
	}
	return q
}

func fromDomainQuestion(q *domain.Question) *models.ExamQuestion {
	m := &models.ExamQuestion{
		ID:              q.ID,
		QuestionGroupID: q.QuestionGroupID,
		QuestionType:    string(q.QuestionType),
		Prompt:          util.StringToNullString(q.Prompt),
		ScoreWeight:     q.ScoreWeight(),
		Explanation:     util.StringToNullString(q.Explanation),
		DisplayOrder:    q.DisplayOrder,
	}
	if len(q.Options) > 0 {
		m.Options = models.NewJSONText(q.Options)
	}
	if g, ok := q.Objective(); ok {
		m.IsObjective = 1
		m.CorrectAnswer = models.NewJSONText(g.CorrectAnswer)
	}
	return m
}

// CreateExam inserts the exam and its whole tree. Callers wrap it in a transaction.
func (r *examRepository) CreateExam(ctx context.Context, exam *domain.Exam) error {
	exec := GetExecutor(ctx, r.db)
	now := time.Now()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now

	id, err := nextSequenceValue(ctx, exec, "exams_seq")
	if err != nil {
		return err
	}
	exam.ID = id

	m := fromDomainExam(exam)
	query := fmt.Sprintf("INSERT INTO exams (%s) VALUES (%s)", strings.Join(examColumns, ", "), bindList(1, len(examColumns)))
	if _, err := exec.ExecContext(ctx, query,
		m.ID, m.Code, m.Title, m.Description, m.ExamType, m.ReadingVariant,
		m.TotalDurationSeconds, m.ThumbnailURL, m.IsPublished, m.Metadata, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert exam %s: %w", exam.Code, err)
	}

	for _, section := range exam.Sections {
		section.ExamID = exam.ID
		if err := r.insertSection(ctx, exec, section); err != nil {
			return err
		}
	}
	return nil
}

func (r *examRepository) insertSection(ctx context.Context, exec DBTX, s *domain.Section) error {
	id, err := nextSequenceValue(ctx, exec, "exam_sections_seq")
	if err != nil {
		return err
	}
	s.ID = id

	query := fmt.Sprintf("INSERT INTO exam_sections (%s) VALUES (%s)", strings.Join(sectionColumns, ", "), bindList(1, len(sectionColumns)))
	if _, err := exec.ExecContext(ctx, query,
		s.ID, s.ExamID, s.Title, string(s.SectionType), s.DisplayOrder, s.DurationSeconds,
		util.StringToNullString(s.Instructions), util.StringToNullString(s.AudioURL),
	); err != nil {
		return fmt.Errorf("failed to insert section %q: %w", s.Title, err)
	}

	for _, g := range s.Groups {
		g.SectionID = s.ID
		if err := r.insertSectionGroup(ctx, exec, g); err != nil {
			return err
		}
	}
	return nil
}

func (r *examRepository) insertSectionGroup(ctx context.Context, exec DBTX, g *domain.SectionGroup) error {
	id, err := nextSequenceValue(ctx, exec, "exam_section_groups_seq")
	if err != nil {
		return err
	}
	g.ID = id

	query := fmt.Sprintf("INSERT INTO exam_section_groups (%s) VALUES (%s)", strings.Join(sectionGroupColumns, ", "), bindList(1, len(sectionGroupColumns)))
	if _, err := exec.ExecContext(ctx, query,
		g.ID, g.SectionID, g.GroupType, util.StringToNullString(g.Title), util.StringToNullString(g.Description),
		util.StringToNullString(g.Content), util.StringToNullString(g.ResourceURL), g.DisplayOrder,
	); err != nil {
		return fmt.Errorf("failed to insert section group: %w", err)
	}

	for _, qg := range g.QuestionGroups {
		qg.SectionGroupID = g.ID
		if err := r.insertQuestionGroup(ctx, exec, qg); err != nil {
			return err
		}
	}
	return nil
}

func (r *examRepository) insertQuestionGroup(ctx context.Context, exec DBTX, qg *domain.QuestionGroup) error {
	id, err := nextSequenceValue(ctx, exec, "exam_question_groups_seq")
	if err != nil {
		return err
	}
	qg.ID = id

	query := fmt.Sprintf("INSERT INTO exam_question_groups (%s) VALUES (%s)", strings.Join(questionGroupColumns, ", "), bindList(1, len(questionGroupColumns)))
	if _, err := exec.ExecContext(ctx, query,
		qg.ID, qg.SectionGroupID, util.StringToNullString(qg.Title), util.StringToNullString(qg.Description),
		util.StringToNullString(qg.Content), util.StringToNullString(qg.ResourceURL), qg.DisplayOrder,
	); err != nil {
		return fmt.Errorf("failed to insert question group: %w", err)
	}

	for _, q := range qg.Questions {
		q.QuestionGroupID = qg.ID
		if err := r.insertQuestion(ctx, exec, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *examRepository) insertQuestion(ctx context.Context, exec DBTX, q *domain.Question) error {
	id, err := nextSequenceValue(ctx, exec, "exam_questions_seq")
	if err != nil {
		return err
	}
	q.ID = id

	m := fromDomainQuestion(q)
	query := fmt.Sprintf("INSERT INTO exam_questions (%s) VALUES (%s)", strings.Join(questionColumns, ", "), bindList(1, len(questionColumns)))
	if _, err := exec.ExecContext(ctx, query,
		m.ID, m.QuestionGroupID, m.QuestionType, m.Prompt, m.Options,
		m.IsObjective, m.CorrectAnswer, m.ScoreWeight, m.Explanation, m.DisplayOrder,
	); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

func (r *examRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}

	var found []string
	query := fmt.Sprintf("SELECT code FROM exams WHERE code IN (%s)", bindList(1, len(codes)))
	if err := GetExecutor(ctx, r.db).SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to check exam codes: %w", err)
	}
	return found, nil
}

func (r *examRepository) GetExamByID(ctx context.Context, id int64) (*domain.Exam, error) {
	var m models.Exam
	query := fmt.Sprintf("SELECT %s FROM exams WHERE id = :1", strings.Join(examColumns, ", "))
	if err := GetExecutor(ctx, r.db).GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get exam by ID %d: %w", id, err)
	}
	return toDomainExam(&m), nil
}

// GetExamTree loads the exam and its tree with one query per level.
func (r *examRepository) GetExamTree(ctx context.Context, id int64) (*domain.Exam, error) {
	exam, err := r.GetExamByID(ctx, id)
	if err != nil || exam == nil {
		return exam, err
	}
	exec := GetExecutor(ctx, r.db)

	var sections []models.ExamSection
	query := fmt.Sprintf("SELECT %s FROM exam_sections s WHERE s.exam_id = :1 ORDER BY s.display_order, s.id",
		qualify("s", sectionColumns))
	if err := exec.SelectContext(ctx, &sections, query, id); err != nil {
		return nil, fmt.Errorf("failed to get sections of exam %d: %w", id, err)
	}

	var sectionGroups []models.ExamSectionGroup
	query = fmt.Sprintf(`SELECT %s FROM exam_section_groups g
		JOIN exam_sections s ON g.section_id = s.id
		WHERE s.exam_id = :1 ORDER BY g.display_order, g.id`, qualify("g", sectionGroupColumns))
	if err := exec.SelectContext(ctx, &sectionGroups, query, id); err != nil {
		return nil, fmt.Errorf("failed to get section groups of exam %d: %w", id, err)
	}

	var questionGroups []models.ExamQuestionGroup
	query = fmt.Sprintf(`SELECT %s FROM exam_question_groups qg
		JOIN exam_section_groups g ON qg.section_group_id = g.id
		JOIN exam_sections s ON g.section_id = s.id
		WHERE s.exam_id = :1 ORDER BY qg.display_order, qg.id`, qualify("qg", questionGroupColumns))
	if err := exec.SelectContext(ctx, &questionGroups, query, id); err != nil {
		return nil, fmt.Errorf("failed to get question groups of exam %d: %w", id, err)
	}

	var questions []models.ExamQuestion
	query = fmt.Sprintf(`SELECT %s FROM exam_questions q
		JOIN exam_question_groups qg ON q.question_group_id = qg.id
		JOIN exam_section_groups g ON qg.section_group_id = g.id
		JOIN exam_sections s ON g.section_id = s.id
		WHERE s.exam_id = :1 ORDER BY q.display_order, q.id`, qualify("q", questionColumns))
	if err := exec.SelectContext(ctx, &questions, query, id); err != nil {
		return nil, fmt.Errorf("failed to get questions of exam %d: %w", id, err)
	}

	assembleExamTree(exam, sections, sectionGroups, questionGroups, questions)
	return exam, nil
}

// assembleExamTree attaches each level to its parent, keeping the query order.
func assembleExamTree(exam *domain.Exam, sections []models.ExamSection, sectionGroups []models.ExamSectionGroup,
	questionGroups []models.ExamQuestionGroup, questions []models.ExamQuestion) {
	sectionByID := make(map[int64]*domain.Section, len(sections))
	exam.Sections = make([]*domain.Section, 0, len(sections))
	for i := range sections {
		s := toDomainSection(&sections[i])
		sectionByID[s.ID] = s
		exam.Sections = append(exam.Sections, s)
	}

	groupByID := make(map[int64]*domain.SectionGroup, len(sectionGroups))
	for i := range sectionGroups {
		g := toDomainSectionGroup(&sectionGroups[i])
		if s, ok := sectionByID[g.SectionID]; ok {
			s.Groups = append(s.Groups, g)
			groupByID[g.ID] = g
		}
	}

	questionGroupByID := make(map[int64]*domain.QuestionGroup, len(questionGroups))
	for i := range questionGroups {
		qg := toDomainQuestionGroup(&questionGroups[i])
		if g, ok := groupByID[qg.SectionGroupID]; ok {
			g.QuestionGroups = append(g.QuestionGroups, qg)
			questionGroupByID[qg.ID] = qg
		}
	}

	for i := range questions {
		q := toDomainQuestion(&questions[i])
		if qg, ok := questionGroupByID[q.QuestionGroupID]; ok {
			qg.Questions = append(qg.Questions, q)
		}
	}
}

func (r *examRepository) ListExams(ctx context.Context, filter domain.ExamFilter) ([]*domain.Exam, int, error) {
	var where whereBuilder
	if filter.ExamType != nil {
		where.add("e.exam_type = :%d", string(*filter.ExamType))
	}
	if filter.IsPublished != nil {
		where.add("e.is_published = :%d", boolToNumber(*filter.IsPublished))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		where.add("(LOWER(e.title) LIKE :%d OR LOWER(e.description) LIKE :%d)", pattern, pattern)
	}

	resultsQuery, countQuery := pageQueries(qualify("e", examColumns), "exams e", where.sql(),
		"e.created_at DESC, e.id DESC", filter.Limit, filter.Offset)

	exec := GetExecutor(ctx, r.db)
	var rows []models.Exam
	if err := exec.SelectContext(ctx, &rows, resultsQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}
	var total int
	if err := exec.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	exams := make([]*domain.Exam, 0, len(rows))
	for i := range rows {
		exams = append(exams, toDomainExam(&rows[i]))
	}
	return exams, total, nil
}

// UpdateExam writes the exam header fields. The section tree is not touched.
func (r *examRepository) UpdateExam(ctx context.Context, exam *domain.Exam) error {
	exam.UpdatedAt = time.Now()
	m := fromDomainExam(exam)

	query := `UPDATE exams SET code = :1, title = :2, description = :3, exam_type = :4, reading_variant = :5,
		thumbnail_url = :6, is_published = :7, metadata = :8, updated_at = :9 WHERE id = :10`
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		m.Code, m.Title, m.Description, m.ExamType, m.ReadingVariant,
		m.ThumbnailURL, m.IsPublished, m.Metadata, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update exam %d: %w", exam.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for exam %d: %w", exam.ID, err)
	}
	if affected == 0 {
		return domain.NewExamNotFoundError(exam.ID)
	}
	return nil
}

// deleteExamStatements removes an exam bottom-up; every statement binds the exam id once.
var deleteExamStatements = []string{
	`DELETE FROM exam_attempt_answers WHERE attempt_id IN (SELECT id FROM exam_attempts WHERE exam_id = :1)`,
	`DELETE FROM exam_attempts WHERE exam_id = :1`,
	`DELETE FROM exam_questions WHERE question_group_id IN (
		SELECT qg.id FROM exam_question_groups qg
		JOIN exam_section_groups g ON qg.section_group_id = g.id
		JOIN exam_sections s ON g.section_id = s.id WHERE s.exam_id = :1)`,
	`DELETE FROM exam_question_groups WHERE section_group_id IN (
		SELECT g.id FROM exam_section_groups g
		JOIN exam_sections s ON g.section_id = s.id WHERE s.exam_id = :1)`,
	`DELETE FROM exam_section_groups WHERE section_id IN (SELECT id FROM exam_sections WHERE exam_id = :1)`,
	`DELETE FROM exam_sections WHERE exam_id = :1`,
}

// DeleteExam removes the exam with everything below it. Callers wrap it in a transaction.
func (r *examRepository) DeleteExam(ctx context.Context, id int64) error {
	exec := GetExecutor(ctx, r.db)
	for _, stmt := range deleteExamStatements {
		if _, err := exec.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete dependents of exam %d: %w", id, err)
		}
	}

	result, err := exec.ExecContext(ctx, "DELETE FROM exams WHERE id = :1", id)
	if err != nil {
		return fmt.Errorf("failed to delete exam %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for exam %d: %w", id, err)
	}
	if affected == 0 {
		return domain.NewExamNotFoundError(id)
	}
	return nil
}
