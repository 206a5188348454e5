package service

import (
	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 50
)

// normalizePage applies the listing defaults and returns page, limit and offset.
func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func toExamSummary(e *domain.Exam) dto.ExamSummaryResponse {
	return dto.ExamSummaryResponse{
		ID:                   e.ID,
		Code:                 e.Code,
		Title:                e.Title,
		Description:          e.Description,
		ExamType:             string(e.ExamType),
		ReadingVariant:       string(e.ReadingVariant),
		TotalDurationSeconds: e.TotalDurationSeconds,
		ThumbnailURL:         e.ThumbnailURL,
		IsPublished:          e.IsPublished,
		CreatedAt:            e.CreatedAt,
	}
}

func toExamDetail(e *domain.Exam, includeAnswers bool) *dto.ExamDetailResponse {
	out := &dto.ExamDetailResponse{
		ExamSummaryResponse: toExamSummary(e),
		Metadata:            e.Metadata.Attributes,
		Sections:            make([]dto.SectionResponse, 0, len(e.Sections)),
	}
	for _, s := range e.Sections {
		out.Sections = append(out.Sections, toSectionResponse(s, includeAnswers))
	}
	return out
}

func toSectionResponse(s *domain.Section, includeAnswers bool) dto.SectionResponse {
	out := dto.SectionResponse{
		ID:              s.ID,
		Title:           s.Title,
		SectionType:     string(s.SectionType),
		DisplayOrder:    s.DisplayOrder,
		DurationSeconds: s.DurationSeconds,
		Instructions:    s.Instructions,
		AudioURL:        s.AudioURL,
		QuestionCount:   len(s.Questions()),
		Groups:          make([]dto.SectionGroupResponse, 0, len(s.Groups)),
	}
	for _, g := range s.Groups {
		group := dto.SectionGroupResponse{
			ID:             g.ID,
			GroupType:      g.GroupType,
			Title:          g.Title,
			Description:    g.Description,
			Content:        g.Content,
			ResourceURL:    g.ResourceURL,
			DisplayOrder:   g.DisplayOrder,
			QuestionGroups: make([]dto.QuestionGroupResponse, 0, len(g.QuestionGroups)),
		}
		for _, qg := range g.QuestionGroups {
			questionGroup := dto.QuestionGroupResponse{
				ID:           qg.ID,
				Title:        qg.Title,
				Description:  qg.Description,
				Content:      qg.Content,
				ResourceURL:  qg.ResourceURL,
				DisplayOrder: qg.DisplayOrder,
				Questions:    make([]dto.QuestionResponse, 0, len(qg.Questions)),
			}
			for _, q := range qg.Questions {
				questionGroup.Questions = append(questionGroup.Questions, toQuestionResponse(q, includeAnswers))
			}
			group.QuestionGroups = append(group.QuestionGroups, questionGroup)
		}
		out.Groups = append(out.Groups, group)
	}
	return out
}

func toQuestionResponse(q *domain.Question, includeAnswers bool) dto.QuestionResponse {
	out := dto.QuestionResponse{
		ID:           q.ID,
		QuestionType: string(q.QuestionType),
		Prompt:       q.Prompt,
		Options:      q.Options,
		DisplayOrder: q.DisplayOrder,
		ScoreWeight:  q.ScoreWeight(),
	}
	if includeAnswers {
		if g, ok := q.Objective(); ok {
			out.CorrectAnswer = g.CorrectAnswer
		}
		out.Explanation = q.Explanation
	}
	return out
}

func toAttemptResponse(a *domain.ExamAttempt) dto.AttemptResponse {
	progress := a.SectionProgress
	if progress == nil {
		progress = map[int64]domain.SectionProgress{}
	}
	return dto.AttemptResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		ExamID:          a.ExamID,
		Mode:            string(a.Mode),
		Status:          string(a.Status),
		TargetSectionID: a.TargetSectionID,
		SectionProgress: progress,
		ScoreSummary:    a.ScoreSummary,
		StartedAt:       a.StartedAt,
		SubmittedAt:     a.SubmittedAt,
	}
}

func toAttemptListItem(l *domain.AttemptListing, withUser bool) dto.AttemptListItem {
	item := dto.AttemptListItem{
		ID: l.Attempt.ID,
		Exam: dto.ExamHeadline{
			ID:       l.Attempt.ExamID,
			Code:     l.ExamCode,
			Title:    l.ExamTitle,
			ExamType: string(l.ExamType),
		},
		Mode:         string(l.Attempt.Mode),
		Status:       string(l.Attempt.Status),
		StartedAt:    l.Attempt.StartedAt,
		SubmittedAt:  l.Attempt.SubmittedAt,
		TotalScore:   l.Attempt.TotalScore,
		ScoreSummary: l.Attempt.ScoreSummary,
	}
	if withUser {
		item.UserID = l.Attempt.UserID
	}
	return item
}
