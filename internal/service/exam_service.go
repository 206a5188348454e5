package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"
	"exam-engine/internal/validation"

	"go.uber.org/zap"
)

// ExamService serves exam content and authoring.
type ExamService interface {
	ListExams(ctx context.Context, query dto.ExamListQuery) (*dto.ExamListResponse, error)
	// GetExamDetail hides answers. With a userID each section carries the
	// caller's completion status.
	GetExamDetail(ctx context.Context, examID int64, userID string) (*dto.ExamDetailResponse, error)
	GetSectionDetail(ctx context.Context, examID, sectionID int64, includeAnswers bool) (*dto.SectionResponse, error)
	ImportExam(ctx context.Context, req *dto.ImportExamRequest) (*dto.ExamDetailResponse, error)
	// ImportExams is atomic: when any exam is rejected none is stored.
	ImportExams(ctx context.Context, reqs []dto.ImportExamRequest) ([]*dto.ExamDetailResponse, error)
	UpdateExam(ctx context.Context, examID int64, req *dto.UpdateExamRequest) (*dto.ExamDetailResponse, error)
	DeleteExam(ctx context.Context, examID int64) error
}

type examService struct {
	exams     domain.ExamRepository
	attempts  domain.AttemptRepository
	trees     ExamTreeReader
	txManager domain.TransactionManager
	validator *validation.Validator
}

func NewExamService(
	exams domain.ExamRepository,
	attempts domain.AttemptRepository,
	trees ExamTreeReader,
	txManager domain.TransactionManager,
	validator *validation.Validator,
) ExamService {
	return &examService{
		exams:     exams,
		attempts:  attempts,
		trees:     trees,
		txManager: txManager,
		validator: validator,
	}
}

func (s *examService) ListExams(ctx context.Context, query dto.ExamListQuery) (*dto.ExamListResponse, error) {
	page, limit, offset := normalizePage(query.Page, query.Limit)
	filter := domain.ExamFilter{
		IsPublished: query.IsPublished,
		Search:      strings.TrimSpace(query.Search),
		Limit:       limit,
		Offset:      offset,
	}
	if query.ExamType != "" {
		examType := domain.ExamType(strings.ToUpper(query.ExamType))
		if !examType.Valid() {
			return nil, domain.ValidationErrors{
				domain.NewInvalidValueError("examType", "must be one of IELTS, TOEIC, GENERAL", query.ExamType),
			}
		}
		filter.ExamType = &examType
	}

	exams, total, err := s.exams.ListExams(ctx, filter)
	if err != nil {
		return nil, domain.NewInternalError("Failed to list exams", err)
	}

	resp := &dto.ExamListResponse{
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		Total:       total,
		Exams:       make([]dto.ExamSummaryResponse, 0, len(exams)),
	}
	for _, e := range exams {
		resp.Exams = append(resp.Exams, toExamSummary(e))
	}
	return resp, nil
}

func (s *examService) loadTree(ctx context.Context, examID int64) (*domain.Exam, error) {
	exam, err := s.trees.GetExamTree(ctx, examID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load exam", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(examID)
	}
	return exam, nil
}

func (s *examService) GetExamDetail(ctx context.Context, examID int64, userID string) (*dto.ExamDetailResponse, error) {
	exam, err := s.loadTree(ctx, examID)
	if err != nil {
		return nil, err
	}
	detail := toExamDetail(exam, false)
	if userID == "" {
		return detail, nil
	}

	attempts, err := s.attempts.ListAttemptsByUserAndExam(ctx, userID, examID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load attempts", err)
	}
	statuses := sectionStatuses(attempts, exam.Sections)
	for i := range detail.Sections {
		detail.Sections[i].UserStatus = statuses[detail.Sections[i].ID]
	}
	return detail, nil
}

// sectionStatuses merges the caller's attempts into one status per section.
// COMPLETED wins; otherwise an open attempt covering the section makes it
// IN_PROGRESS. Sections the caller never touched are left out.
func sectionStatuses(attempts []*domain.ExamAttempt, sections []*domain.Section) map[int64]string {
	statuses := make(map[int64]string)
	for _, a := range attempts {
		for sectionID, p := range a.SectionProgress {
			if p.Status == domain.SectionCompleted {
				statuses[sectionID] = string(domain.SectionCompleted)
			}
		}
	}

	for _, a := range attempts {
		if a.Status != domain.AttemptInProgress {
			continue
		}
		for _, section := range sections {
			if _, done := statuses[section.ID]; done {
				continue
			}
			if a.Mode == domain.AttemptModeFull || (a.TargetSectionID != nil && *a.TargetSectionID == section.ID) {
				statuses[section.ID] = string(domain.AttemptInProgress)
			}
		}
	}
	return statuses
}

func (s *examService) GetSectionDetail(ctx context.Context, examID, sectionID int64, includeAnswers bool) (*dto.SectionResponse, error) {
	exam, err := s.loadTree(ctx, examID)
	if err != nil {
		return nil, err
	}
	section := exam.FindSection(sectionID)
	if section == nil {
		return nil, domain.NewSectionNotFoundError(sectionID)
	}
	resp := toSectionResponse(section, includeAnswers)
	return &resp, nil
}

func (s *examService) ImportExam(ctx context.Context, req *dto.ImportExamRequest) (*dto.ExamDetailResponse, error) {
	if req == nil {
		return nil, domain.NewInvalidInputError("Exam definition is required")
	}
	out, err := s.importExams(ctx, []dto.ImportExamRequest{*req}, func(int) string { return "" })
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *examService) ImportExams(ctx context.Context, reqs []dto.ImportExamRequest) ([]*dto.ExamDetailResponse, error) {
	if len(reqs) == 0 {
		return nil, domain.NewInvalidInputError("At least one exam definition is required")
	}
	return s.importExams(ctx, reqs, func(i int) string { return fmt.Sprintf("[%d].", i) })
}

func (s *examService) importExams(ctx context.Context, reqs []dto.ImportExamRequest, prefix func(int) string) ([]*dto.ExamDetailResponse, error) {
	var verrs domain.ValidationErrors
	exams := make([]*domain.Exam, 0, len(reqs))
	for i := range reqs {
		for _, e := range s.validator.Validate(&reqs[i]) {
			e.Field = prefix(i) + e.Field
			verrs = append(verrs, e)
		}
		exam, errs := buildExam(&reqs[i])
		for _, e := range errs {
			e.Field = prefix(i) + e.Field
			verrs = append(verrs, e)
		}
		exams = append(exams, exam)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	codes := make([]string, 0, len(exams))
	seen := make(map[string]bool, len(exams))
	var duplicates []string
	for _, e := range exams {
		if seen[e.Code] {
			duplicates = append(duplicates, e.Code)
			continue
		}
		seen[e.Code] = true
		codes = append(codes, e.Code)
	}
	if len(duplicates) > 0 {
		return nil, domain.NewDuplicateExamCodeError(duplicates...)
	}

	existing, err := s.exams.ExistingCodes(ctx, codes)
	if err != nil {
		return nil, domain.NewInternalError("Failed to check exam codes", err)
	}
	if len(existing) > 0 {
		return nil, domain.NewDuplicateExamCodeError(existing...)
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		for _, e := range exams {
			if err := s.exams.CreateExam(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if domain.HasCode(err, domain.ErrDuplicateExamCode) {
			return nil, err
		}
		return nil, domain.NewInternalError("Failed to import exams", err)
	}

	out := make([]*dto.ExamDetailResponse, 0, len(exams))
	for _, e := range exams {
		logger.Get().Info("Exam imported",
			zap.Int64("examID", e.ID),
			zap.String("code", e.Code),
			zap.Int("sections", len(e.Sections)))
		out = append(out, toExamDetail(e, true))
	}
	return out, nil
}

// buildExam turns an import definition into an exam tree with defaults
// applied and children sorted by display order.
func buildExam(req *dto.ImportExamRequest) (*domain.Exam, domain.ValidationErrors) {
	var errs domain.ValidationErrors

	exam := &domain.Exam{
		Code:         strings.TrimSpace(req.Code),
		Title:        req.Title,
		Description:  req.Description,
		ExamType:     domain.ExamTypeIELTS,
		ThumbnailURL: req.ThumbnailURL,
		Metadata:     domain.Metadata{Version: domain.CurrentMetadataVersion},
	}
	if len(req.Metadata) > 0 {
		exam.Metadata.Attributes = make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			exam.Metadata.Attributes[k] = v
		}
	}
	if req.ExamType != "" {
		exam.ExamType = domain.ExamType(req.ExamType)
	}
	if req.TotalDurationSeconds != nil {
		exam.TotalDurationSeconds = *req.TotalDurationSeconds
	}
	if req.IsPublished != nil {
		exam.IsPublished = *req.IsPublished
	}

	variant := req.ReadingVariant
	if variant == "" {
		if v, ok := req.Metadata["readingVariant"].(string); ok {
			variant = strings.ToUpper(v)
			delete(exam.Metadata.Attributes, "readingVariant")
		}
	}
	exam.ReadingVariant = domain.ParseReadingVariant(variant)

	orders := make(map[int]bool)
	for i, sr := range req.Sections {
		path := fmt.Sprintf("sections[%d]", i)
		section := &domain.Section{
			Title:           sr.Title,
			SectionType:     domain.SectionGeneral,
			DisplayOrder:    displayOrder(sr.DisplayOrder, i),
			DurationSeconds: sr.DurationSeconds,
			Instructions:    sr.Instructions,
			AudioURL:        sr.AudioURL,
		}
		if sr.SectionType != "" {
			section.SectionType = domain.SectionType(sr.SectionType)
		}
		errs = checkOrder(errs, orders, path, section.DisplayOrder)

		groupOrders := make(map[int]bool)
		for j, gr := range sr.Groups {
			groupPath := fmt.Sprintf("%s.groups[%d]", path, j)
			group := &domain.SectionGroup{
				GroupType:    gr.GroupType,
				Title:        gr.Title,
				Description:  gr.Description,
				Content:      gr.Content,
				ResourceURL:  gr.ResourceURL,
				DisplayOrder: displayOrder(gr.DisplayOrder, j),
			}
			errs = checkOrder(errs, groupOrders, groupPath, group.DisplayOrder)

			questionGroups := gr.QuestionGroups
			if len(gr.Questions) > 0 {
				questionGroups = append(questionGroups[:len(questionGroups):len(questionGroups)],
					dto.ImportQuestionGroupRequest{Questions: gr.Questions})
			}

			qgOrders := make(map[int]bool)
			for k, qgr := range questionGroups {
				qgPath := fmt.Sprintf("%s.questionGroups[%d]", groupPath, k)
				qg := &domain.QuestionGroup{
					Title:        qgr.Title,
					Description:  qgr.Description,
					Content:      qgr.Content,
					ResourceURL:  qgr.ResourceURL,
					DisplayOrder: displayOrder(qgr.DisplayOrder, k),
				}
				errs = checkOrder(errs, qgOrders, qgPath, qg.DisplayOrder)

				questionOrders := make(map[int]bool)
				for n, qr := range qgr.Questions {
					q := buildQuestion(qr, n)
					errs = checkOrder(errs, questionOrders, fmt.Sprintf("%s.questions[%d]", qgPath, n), q.DisplayOrder)
					qg.Questions = append(qg.Questions, q)
				}
				sort.SliceStable(qg.Questions, func(a, b int) bool {
					return qg.Questions[a].DisplayOrder < qg.Questions[b].DisplayOrder
				})
				group.QuestionGroups = append(group.QuestionGroups, qg)
			}
			sort.SliceStable(group.QuestionGroups, func(a, b int) bool {
				return group.QuestionGroups[a].DisplayOrder < group.QuestionGroups[b].DisplayOrder
			})
			section.Groups = append(section.Groups, group)
		}
		sort.SliceStable(section.Groups, func(a, b int) bool {
			return section.Groups[a].DisplayOrder < section.Groups[b].DisplayOrder
		})
		exam.Sections = append(exam.Sections, section)
	}
	sort.SliceStable(exam.Sections, func(a, b int) bool {
		return exam.Sections[a].DisplayOrder < exam.Sections[b].DisplayOrder
	})

	return exam, errs
}

func buildQuestion(qr dto.ImportQuestionRequest, index int) *domain.Question {
	weight := 1.0
	if qr.ScoreWeight != nil {
		weight = *qr.ScoreWeight
	}
	questionType := domain.QuestionType(qr.QuestionType)
	return &domain.Question{
		QuestionType: questionType,
		Prompt:       qr.Prompt,
		Options:      qr.Options,
		Explanation:  qr.Explanation,
		DisplayOrder: displayOrder(qr.DisplayOrder, index),
		Grading:      domain.NewGrading(questionType, qr.CorrectAnswer, weight),
	}
}

// displayOrder defaults to the position within the parent, starting at 1.
func displayOrder(given *int, index int) int {
	if given != nil {
		return *given
	}
	return index + 1
}

func checkOrder(errs domain.ValidationErrors, seen map[int]bool, path string, order int) domain.ValidationErrors {
	if seen[order] {
		return append(errs, domain.NewInvalidValueError(path+".displayOrder", "duplicate display order within parent", order))
	}
	seen[order] = true
	return errs
}

func (s *examService) UpdateExam(ctx context.Context, examID int64, req *dto.UpdateExamRequest) (*dto.ExamDetailResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	exam, err := s.exams.GetExamByID(ctx, examID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to load exam", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(examID)
	}

	patch := domain.ExamPatch{
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
		IsPublished:  req.IsPublished,
	}
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code != exam.Code {
			existing, err := s.exams.ExistingCodes(ctx, []string{code})
			if err != nil {
				return nil, domain.NewInternalError("Failed to check exam codes", err)
			}
			if len(existing) > 0 {
				return nil, domain.NewDuplicateExamCodeError(existing...)
			}
		}
		patch.Code = &code
	}
	if req.ExamType != nil {
		examType := domain.ExamType(*req.ExamType)
		patch.ExamType = &examType
	}
	if req.ReadingVariant != nil {
		variant := domain.ParseReadingVariant(*req.ReadingVariant)
		patch.ReadingVariant = &variant
	}
	if req.Metadata != nil {
		patch.Metadata = &domain.Metadata{Version: domain.CurrentMetadataVersion, Attributes: *req.Metadata}
	}
	patch.Apply(exam)

	if err := s.exams.UpdateExam(ctx, exam); err != nil {
		if domain.HasCode(err, domain.ErrExamNotFound) || domain.HasCode(err, domain.ErrDuplicateExamCode) {
			return nil, err
		}
		return nil, domain.NewInternalError("Failed to update exam", err)
	}
	s.trees.Invalidate(ctx, examID)
	logger.Get().Info("Exam updated", zap.Int64("examID", examID))

	tree, err := s.loadTree(ctx, examID)
	if err != nil {
		return nil, err
	}
	return toExamDetail(tree, true), nil
}

func (s *examService) DeleteExam(ctx context.Context, examID int64) error {
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		return s.exams.DeleteExam(ctx, examID)
	})
	if err != nil {
		if domain.HasCode(err, domain.ErrExamNotFound) {
			return err
		}
		return domain.NewInternalError("Failed to delete exam", err)
	}
	s.trees.Invalidate(ctx, examID)
	logger.Get().Info("Exam deleted", zap.Int64("examID", examID))
	return nil
}
