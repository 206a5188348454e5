package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"
	"exam-engine/internal/scoring"
	"exam-engine/internal/validation"

	"go.uber.org/zap"
)

// AttemptService drives an attempt from start to finalization.
type AttemptService interface {
	StartAttempt(ctx context.Context, userID string, examID int64, req *dto.StartAttemptRequest) (*dto.AttemptResponse, error)
	SubmitSection(ctx context.Context, attemptID, sectionID int64, userID string, req *dto.SubmitSectionRequest) (*dto.SectionSubmissionResponse, error)
	FinalizeAttempt(ctx context.Context, attemptID int64, userID string) (*dto.FinalizeAttemptResponse, error)
	ListAttempts(ctx context.Context, userID string, page, limit int) (*dto.AttemptListResponse, error)
	// GetAttemptDetail checks ownership unless userID is empty (admin access).
	GetAttemptDetail(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error)
	AdminListAttempts(ctx context.Context, query dto.AttemptListQuery) (*dto.AttemptListResponse, error)
	// ExportAttempts writes every attempt matching query as an XLSX workbook
	// and returns the number of rows written.
	ExportAttempts(ctx context.Context, query dto.AttemptListQuery, w io.Writer) (int, error)
}

type attemptService struct {
	attempts  domain.AttemptRepository
	answers   domain.AnswerRepository
	trees     ExamTreeReader
	txManager domain.TransactionManager
	queue     domain.GradingQueue
	validator *validation.Validator
	retry     conflictRetry
	now       func() time.Time
}

// NewAttemptService builds the service. queue may be nil, in which case
// open-ended answers stay ungraded.
func NewAttemptService(
	attempts domain.AttemptRepository,
	answers domain.AnswerRepository,
	trees ExamTreeReader,
	txManager domain.TransactionManager,
	queue domain.GradingQueue,
	validator *validation.Validator,
) AttemptService {
	return &attemptService{
		attempts:  attempts,
		answers:   answers,
		trees:     trees,
		txManager: txManager,
		queue:     queue,
		validator: validator,
		retry:     defaultConflictRetry(),
		now:       time.Now,
	}
}

func (s *attemptService) loadTree(ctx context.Context, examID int64) (*domain.Exam, error) {
	exam, err := s.trees.GetExamTree(ctx, examID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load exam", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(examID)
	}
	return exam, nil
}

func (s *attemptService) StartAttempt(ctx context.Context, userID string, examID int64, req *dto.StartAttemptRequest) (*dto.AttemptResponse, error) {
	if req == nil {
		req = &dto.StartAttemptRequest{}
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	exam, err := s.loadTree(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return nil, domain.NewExamNotPublishedError(examID)
	}

	mode := domain.AttemptModeSection
	if req.Mode != "" {
		mode = domain.AttemptMode(req.Mode)
	}

	var target *int64
	if mode == domain.AttemptModeSection {
		if req.SectionID == nil {
			return nil, domain.ValidationErrors{domain.NewMissingFieldError("sectionId")}
		}
		if exam.FindSection(*req.SectionID) == nil {
			return nil, domain.NewSectionNotInExamError(examID, *req.SectionID)
		}
		sectionID := *req.SectionID
		target = &sectionID
	}

	if req.ResumeLast {
		existing, err := s.attempts.FindInProgressAttempt(ctx, userID, examID, mode, target)
		if err != nil {
			return nil, domain.NewInternalError("Failed to look up attempts", err)
		}
		if existing != nil {
			logger.Get().Debug("Resuming attempt",
				zap.Int64("attemptID", existing.ID),
				zap.String("userID", userID))
			resp := toAttemptResponse(existing)
			return &resp, nil
		}
	}

	attempt := &domain.ExamAttempt{
		UserID:          userID,
		ExamID:          examID,
		Mode:            mode,
		Status:          domain.AttemptInProgress,
		TargetSectionID: target,
		SectionProgress: map[int64]domain.SectionProgress{},
		StartedAt:       s.now(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return nil, domain.NewInternalError("Failed to create attempt", err)
	}
	logger.Get().Info("Attempt started",
		zap.Int64("attemptID", attempt.ID),
		zap.Int64("examID", examID),
		zap.String("userID", userID),
		zap.String("mode", string(mode)))

	resp := toAttemptResponse(attempt)
	return &resp, nil
}

// loadOwnedAttempt runs the checks shared by submit and finalize.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, attemptID int64, userID string) (*domain.ExamAttempt, error) {
	attempt, err := s.attempts.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load attempt", err)
	}
	if attempt == nil {
		return nil, domain.NewAttemptNotFoundError(attemptID)
	}
	if !attempt.IsOwnedBy(userID) {
		return nil, domain.NewNotAttemptOwnerError(attemptID)
	}
	if attempt.IsSubmitted() {
		return nil, domain.NewAttemptSubmittedError(attemptID)
	}
	return attempt, nil
}

func (s *attemptService) SubmitSection(ctx context.Context, attemptID, sectionID int64, userID string, req *dto.SubmitSectionRequest) (*dto.SectionSubmissionResponse, error) {
	if req == nil {
		req = &dto.SubmitSectionRequest{}
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	var (
		section *domain.Section
		eval    scoring.SectionEvaluation
	)
	err := s.retry.do(ctx, func(ctx context.Context) error {
		attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID)
		if err != nil {
			return err
		}
		if attempt.Mode == domain.AttemptModeSection && attempt.TargetSectionID != nil && *attempt.TargetSectionID != sectionID {
			return domain.NewSectionLockedError(*attempt.TargetSectionID, sectionID)
		}

		exam, err := s.loadTree(ctx, attempt.ExamID)
		if err != nil {
			return err
		}
		section = exam.FindSection(sectionID)
		if section == nil {
			return domain.NewSectionNotInExamError(attempt.ExamID, sectionID)
		}
		if len(req.Answers) == 0 {
			return domain.NewEmptyAnswersError()
		}

		submitted := make(map[int64]interface{}, len(req.Answers))
		for _, a := range req.Answers {
			submitted[a.QuestionID] = a.Answer
		}
		eval = scoring.EvaluateSection(attempt.ID, section, submitted, s.now())

		progress := attempt.CopyProgress()
		progress[section.ID] = eval.Progress

		return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			if err := s.answers.UpsertAnswers(ctx, eval.Answers); err != nil {
				return err
			}
			return s.attempts.SaveSectionProgress(ctx, attempt.ID, progress, attempt.Version)
		})
	})
	if err != nil {
		return nil, asDomainError(err, "Failed to submit section")
	}

	logger.Get().Info("Section submitted",
		zap.Int64("attemptID", attemptID),
		zap.Int64("sectionID", sectionID),
		zap.Int("answered", eval.Progress.AnsweredCount),
		zap.Int("correct", eval.Progress.CorrectCount))

	if len(eval.OpenEnded) > 0 {
		s.enqueueGrading(ctx, attemptID, sectionID, eval.OpenEnded)
	}

	return &dto.SectionSubmissionResponse{
		SectionID:      section.ID,
		SectionType:    string(section.SectionType),
		Status:         string(eval.Progress.Status),
		AnsweredCount:  eval.Progress.AnsweredCount,
		CorrectCount:   eval.Progress.CorrectCount,
		TotalQuestions: eval.Progress.TotalQuestions,
		EarnedScore:    eval.Progress.EarnedScore,
		SubmittedAt:    eval.Progress.SubmittedAt,
	}, nil
}

// enqueueGrading never fails the submission; a lost job only leaves the
// answers ungraded.
func (s *attemptService) enqueueGrading(ctx context.Context, attemptID, sectionID int64, questionIDs []int64) {
	if s.queue == nil {
		logger.Get().Warn("No grading queue configured, open-ended answers stay ungraded",
			zap.Int64("attemptID", attemptID))
		return
	}
	job := domain.GradingJob{AttemptID: attemptID, SectionID: sectionID, QuestionIDs: questionIDs}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		logger.Get().Error("Failed to enqueue grading job",
			zap.Int64("attemptID", attemptID),
			zap.Int64("sectionID", sectionID),
			zap.Error(err))
	}
}

func (s *attemptService) FinalizeAttempt(ctx context.Context, attemptID int64, userID string) (*dto.FinalizeAttemptResponse, error) {
	var resp *dto.FinalizeAttemptResponse
	err := s.retry.do(ctx, func(ctx context.Context) error {
		attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID)
		if err != nil {
			return err
		}
		exam, err := s.loadTree(ctx, attempt.ExamID)
		if err != nil {
			return err
		}
		if missing := missingSections(attempt, exam); len(missing) > 0 {
			return domain.NewAttemptIncompleteError(missing)
		}

		answers, err := s.answers.ListAnswersByAttempt(ctx, attempt.ID)
		if err != nil {
			return err
		}
		summary := scoring.BuildScoreSummary(exam, answers)
		submittedAt := s.now()
		if err := s.attempts.MarkSubmitted(ctx, attempt.ID, summary, submittedAt, attempt.Version); err != nil {
			return err
		}

		resp = &dto.FinalizeAttemptResponse{
			AttemptID:    attempt.ID,
			ExamID:       attempt.ExamID,
			Status:       string(domain.AttemptSubmitted),
			SubmittedAt:  submittedAt,
			ScoreSummary: summary,
		}
		return nil
	})
	if err != nil {
		return nil, asDomainError(err, "Failed to finalize attempt")
	}

	logger.Get().Info("Attempt finalized",
		zap.Int64("attemptID", attemptID),
		zap.Float64("totalScore", resp.ScoreSummary.Totals.TotalScore))
	return resp, nil
}

// missingSections lists the sections that still need a COMPLETED snapshot.
func missingSections(attempt *domain.ExamAttempt, exam *domain.Exam) []int64 {
	if attempt.Mode == domain.AttemptModeSection && attempt.TargetSectionID != nil {
		if attempt.SectionCompleted(*attempt.TargetSectionID) {
			return nil
		}
		return []int64{*attempt.TargetSectionID}
	}

	var missing []int64
	for _, section := range exam.Sections {
		if !attempt.SectionCompleted(section.ID) {
			missing = append(missing, section.ID)
		}
	}
	return missing
}

func (s *attemptService) ListAttempts(ctx context.Context, userID string, page, limit int) (*dto.AttemptListResponse, error) {
	page, limit, offset := normalizePage(page, limit)
	listings, total, err := s.attempts.ListAttemptsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, domain.NewInternalError("Failed to list attempts", err)
	}
	return toAttemptList(listings, total, page, limit, false), nil
}

func (s *attemptService) AdminListAttempts(ctx context.Context, query dto.AttemptListQuery) (*dto.AttemptListResponse, error) {
	page, limit, offset := normalizePage(query.Page, query.Limit)
	filter, err := attemptFilter(query)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	filter.Offset = offset

	listings, total, err := s.attempts.SearchAttempts(ctx, filter)
	if err != nil {
		return nil, domain.NewInternalError("Failed to search attempts", err)
	}
	return toAttemptList(listings, total, page, limit, true), nil
}

func attemptFilter(query dto.AttemptListQuery) (domain.AttemptFilter, error) {
	filter := domain.AttemptFilter{
		UserID:    strings.TrimSpace(query.UserID),
		ExamID:    query.ExamID,
		Search:    strings.TrimSpace(query.Search),
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
		MinScore:  query.MinScore,
		MaxScore:  query.MaxScore,
	}
	if query.Status != "" {
		status := domain.AttemptStatus(strings.ToUpper(query.Status))
		if status != domain.AttemptInProgress && status != domain.AttemptSubmitted {
			return filter, domain.ValidationErrors{
				domain.NewInvalidValueError("status", "must be IN_PROGRESS or SUBMITTED", query.Status),
			}
		}
		filter.Status = &status
	}
	return filter, nil
}

func toAttemptList(listings []*domain.AttemptListing, total, page, limit int, withUser bool) *dto.AttemptListResponse {
	resp := &dto.AttemptListResponse{
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		Total:       total,
		Attempts:    make([]dto.AttemptListItem, 0, len(listings)),
	}
	for _, l := range listings {
		resp.Attempts = append(resp.Attempts, toAttemptListItem(l, withUser))
	}
	return resp
}

func (s *attemptService) GetAttemptDetail(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error) {
	attempt, err := s.attempts.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load attempt", err)
	}
	if attempt == nil {
		return nil, domain.NewAttemptNotFoundError(attemptID)
	}
	admin := userID == ""
	if !admin && !attempt.IsOwnedBy(userID) {
		return nil, domain.NewNotAttemptOwnerError(attemptID)
	}

	exam, err := s.loadTree(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListAnswersByAttempt(ctx, attemptID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load answers", err)
	}

	return &dto.AttemptDetailResponse{
		Attempt: toAttemptResponse(attempt),
		Exam: dto.ExamHeadline{
			ID:       exam.ID,
			Code:     exam.Code,
			Title:    exam.Title,
			ExamType: string(exam.ExamType),
		},
		ScoreSummary: attempt.ScoreSummary,
		Sections:     reviewSections(exam, answers, admin || attempt.IsSubmitted()),
	}, nil
}

// reviewSections lays the answers out along the exam tree. Only answered
// branches appear. Correct answers are revealed once the attempt is final.
func reviewSections(exam *domain.Exam, answers []*domain.AttemptAnswer, revealAnswers bool) []dto.AttemptSectionReview {
	byQuestion := make(map[int64]*domain.AttemptAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	sections := make([]dto.AttemptSectionReview, 0)
	for _, s := range exam.Sections {
		sectionReview := dto.AttemptSectionReview{
			ID:          s.ID,
			Title:       s.Title,
			SectionType: string(s.SectionType),
		}
		for _, g := range s.Groups {
			groupReview := dto.AttemptGroupReview{ID: g.ID, Title: g.Title, GroupType: g.GroupType}
			for _, qg := range g.QuestionGroups {
				qgReview := dto.AttemptQuestionGroupReview{ID: qg.ID, Title: qg.Title, Content: qg.Content}
				for _, q := range qg.Questions {
					a, ok := byQuestion[q.ID]
					if !ok {
						continue
					}
					qgReview.Questions = append(qgReview.Questions, reviewQuestion(q, a, revealAnswers))
				}
				if len(qgReview.Questions) > 0 {
					groupReview.QuestionGroups = append(groupReview.QuestionGroups, qgReview)
				}
			}
			if len(groupReview.QuestionGroups) > 0 {
				sectionReview.Groups = append(sectionReview.Groups, groupReview)
			}
		}
		if len(sectionReview.Groups) > 0 {
			sections = append(sections, sectionReview)
		}
	}
	return sections
}

func reviewQuestion(q *domain.Question, a *domain.AttemptAnswer, revealAnswers bool) dto.AttemptQuestionReview {
	review := dto.AttemptQuestionReview{
		QuestionID:   q.ID,
		QuestionType: string(q.QuestionType),
		Prompt:       q.Prompt,
		Options:      q.Options,
		UserAnswer:   a.Payload,
		IsCorrect:    a.IsCorrect,
		Score:        a.Score,
		AIFeedback:   a.AIFeedback,
	}
	if revealAnswers {
		if g, ok := q.Objective(); ok {
			review.CorrectAnswer = g.CorrectAnswer
		}
		review.Explanation = q.Explanation
	}
	return review
}

// asDomainError keeps DomainErrors, validation errors and context errors as
// they are and wraps anything else as an internal error.
func asDomainError(err error, message string) error {
	var domainErr *domain.DomainError
	var validationErrs domain.ValidationErrors
	switch {
	case errors.As(err, &domainErr), errors.As(err, &validationErrs):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return domain.NewInternalError(message, err)
}
