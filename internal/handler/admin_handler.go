package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/middleware"
	"exam-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves exam authoring and attempt review for administrators.
type AdminHandler struct {
	exams    service.ExamService
	attempts service.AttemptService
}

func NewAdminHandler(exams service.ExamService, attempts service.AttemptService) *AdminHandler {
	return &AdminHandler{exams: exams, attempts: attempts}
}

// ImportExams godoc
// @Summary Import exams
// @Description Imports one exam tree, or an array of them atomically
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body dto.ImportExamRequest true "Exam tree or array of exam trees"
// @Success 201 {object} dto.ExamDetailResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /admin/exams/import [post]
func (h *AdminHandler) ImportExams(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return domain.NewInvalidInputError("Request body is empty")
	}

	if body[0] == '[' {
		var reqs []dto.ImportExamRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			return domain.NewInvalidInputError("Invalid request body")
		}
		resp, err := h.exams.ImportExams(c.UserContext(), reqs)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	}

	var req dto.ImportExamRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.NewInvalidInputError("Invalid request body")
	}
	resp, err := h.exams.ImportExam(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListExams godoc
// @Summary List exams (admin)
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} dto.ExamListResponse
// @Router /admin/exams [get]
func (h *AdminHandler) ListExams(c *fiber.Ctx) error {
	query, err := examListQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.exams.ListExams(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// UpdateExam godoc
// @Summary Update exam metadata
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "Exam ID"
// @Param request body dto.UpdateExamRequest true "Fields to change"
// @Success 200 {object} dto.ExamDetailResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /admin/exams/{examId} [patch]
func (h *AdminHandler) UpdateExam(c *fiber.Ctx) error {
	var req dto.UpdateExamRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.exams.UpdateExam(c.UserContext(), middleware.IDParam(c, "examId"), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// DeleteExam godoc
// @Summary Delete an exam
// @Description Deletes the exam with its sections, questions, attempts and answers
// @Tags admin
// @Security ApiKeyAuth
// @Param examId path int true "Exam ID"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{examId} [delete]
func (h *AdminHandler) DeleteExam(c *fiber.Ctx) error {
	if err := h.exams.DeleteExam(c.UserContext(), middleware.IDParam(c, "examId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSectionDetail godoc
// @Summary Get section detail with answers
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "Exam ID"
// @Param sectionId path int true "Section ID"
// @Success 200 {object} dto.SectionResponse
// @Router /admin/exams/{examId}/sections/{sectionId} [get]
func (h *AdminHandler) GetSectionDetail(c *fiber.Ctx) error {
	resp, err := h.exams.GetSectionDetail(c.UserContext(), middleware.IDParam(c, "examId"), middleware.IDParam(c, "sectionId"), true)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// attemptListQuery reads the admin attempt filters. Dates are YYYY-MM-DD.
func attemptListQuery(c *fiber.Ctx) (dto.AttemptListQuery, error) {
	query := dto.AttemptListQuery{
		UserID: c.Query("userId"),
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 10),
	}
	var errs domain.ValidationErrors

	if raw := c.Query("examId"); raw != "" {
		examID := int64(c.QueryInt("examId", 0))
		if examID <= 0 {
			errs = append(errs, domain.NewInvalidFormatError("examId", raw))
		} else {
			query.ExamID = &examID
		}
	}
	parseDate := func(name string, endOfDay bool) *time.Time {
		raw := c.Query(name)
		if raw == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			errs = append(errs, domain.NewInvalidFormatError(name, raw))
			return nil
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t
	}
	query.StartDate = parseDate("startDate", false)
	query.EndDate = parseDate("endDate", true)

	parseScore := func(name string) *float64 {
		raw := c.Query(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, domain.NewInvalidFormatError(name, raw))
			return nil
		}
		return &v
	}
	query.MinScore = parseScore("minScore")
	query.MaxScore = parseScore("maxScore")

	if len(errs) > 0 {
		return query, errs
	}
	return query, nil
}

// ListAttempts godoc
// @Summary Search attempts
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param userId query string false "Owner"
// @Param examId query int false "Exam"
// @Param status query string false "IN_PROGRESS or SUBMITTED"
// @Param search query string false "Matches exam title or code"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Param minScore query number false "Minimum total score"
// @Param maxScore query number false "Maximum total score"
// @Success 200 {object} dto.AttemptListResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /admin/exam-attempts [get]
func (h *AdminHandler) ListAttempts(c *fiber.Ctx) error {
	query, err := attemptListQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.attempts.AdminListAttempts(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ExportAttempts godoc
// @Summary Export attempts
// @Description Every attempt matching the filters as an XLSX workbook
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security ApiKeyAuth
// @Success 200 {file} file
// @Router /admin/exam-attempts/export [get]
func (h *AdminHandler) ExportAttempts(c *fiber.Ctx) error {
	query, err := attemptListQuery(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := h.attempts.ExportAttempts(c.UserContext(), query, &buf); err != nil {
		return err
	}

	c.Attachment(fmt.Sprintf("attempts-%s.xlsx", time.Now().Format("20060102-150405")))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Send(buf.Bytes())
}

// GetAttemptDetail godoc
// @Summary Get any attempt
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "Attempt ID"
// @Success 200 {object} dto.AttemptDetailResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exam-attempts/{attemptId} [get]
func (h *AdminHandler) GetAttemptDetail(c *fiber.Ctx) error {
	resp, err := h.attempts.GetAttemptDetail(c.UserContext(), middleware.IDParam(c, "attemptId"), "")
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
