package handler

import (
	"strconv"

	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/middleware"
	"exam-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ExamHandler serves the public exam catalogue.
type ExamHandler struct {
	service service.ExamService
}

func NewExamHandler(service service.ExamService) *ExamHandler {
	return &ExamHandler{service: service}
}

// examListQuery reads the listing filters shared by the public and admin routes.
func examListQuery(c *fiber.Ctx) (dto.ExamListQuery, error) {
	query := dto.ExamListQuery{
		ExamType: c.Query("examType"),
		Search:   c.Query("search"),
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 10),
	}
	if raw := c.Query("isPublished"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return query, domain.ValidationErrors{domain.NewInvalidFormatError("isPublished", raw)}
		}
		query.IsPublished = &published
	}
	return query, nil
}

// ListExams godoc
// @Summary List exams
// @Description Paginated exam list filtered by type, publication state and title/code search
// @Tags exams
// @Produce json
// @Param examType query string false "IELTS, TOEIC or GENERAL"
// @Param isPublished query bool false "Publication state"
// @Param search query string false "Matches title or code"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} dto.ExamListResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /exams [get]
func (h *ExamHandler) ListExams(c *fiber.Ctx) error {
	query, err := examListQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.service.ListExams(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GetExamDetail godoc
// @Summary Get exam detail
// @Description Exam tree without answers. Authenticated callers also get their status per section.
// @Tags exams
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "Exam ID"
// @Success 200 {object} dto.ExamDetailResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /exams/{examId} [get]
func (h *ExamHandler) GetExamDetail(c *fiber.Ctx) error {
	resp, err := h.service.GetExamDetail(c.UserContext(), middleware.IDParam(c, "examId"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GetSectionDetail godoc
// @Summary Get section detail
// @Description One section of an exam without correct answers
// @Tags exams
// @Produce json
// @Param examId path int true "Exam ID"
// @Param sectionId path int true "Section ID"
// @Success 200 {object} dto.SectionResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /exams/{examId}/sections/{sectionId} [get]
func (h *ExamHandler) GetSectionDetail(c *fiber.Ctx) error {
	resp, err := h.service.GetSectionDetail(c.UserContext(), middleware.IDParam(c, "examId"), middleware.IDParam(c, "sectionId"), false)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
