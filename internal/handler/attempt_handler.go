package handler

import (
	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"
	"exam-engine/internal/middleware"
	"exam-engine/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AttemptHandler serves the attempt lifecycle of the authenticated user.
type AttemptHandler struct {
	service service.AttemptService
}

func NewAttemptHandler(service service.AttemptService) *AttemptHandler {
	return &AttemptHandler{service: service}
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		logger.Get().Debug("Failed to parse request body", zap.String("path", c.Path()), zap.Error(err))
		return domain.NewInvalidInputError("Invalid request body")
	}
	return nil
}

// StartAttempt godoc
// @Summary Start an exam attempt
// @Description Starts a FULL or SECTION attempt. With resumeLast the open attempt of the same shape is returned instead.
// @Tags attempts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "Exam ID"
// @Param request body dto.StartAttemptRequest true "Attempt options"
// @Success 201 {object} dto.AttemptResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /exams/{examId}/start [post]
func (h *AttemptHandler) StartAttempt(c *fiber.Ctx) error {
	var req dto.StartAttemptRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	resp, err := h.service.StartAttempt(c.UserContext(), middleware.UserID(c), middleware.IDParam(c, "examId"), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// SubmitSection godoc
// @Summary Submit a section
// @Description Grades the objective answers of one section and stores its progress snapshot. Open-ended answers are graded asynchronously.
// @Tags attempts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "Attempt ID"
// @Param sectionId path int true "Section ID"
// @Param request body dto.SubmitSectionRequest true "Answers"
// @Success 200 {object} dto.SectionSubmissionResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /exam-attempts/{attemptId}/sections/{sectionId}/submit [post]
func (h *AttemptHandler) SubmitSection(c *fiber.Ctx) error {
	var req dto.SubmitSectionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.SubmitSection(c.UserContext(),
		middleware.IDParam(c, "attemptId"), middleware.IDParam(c, "sectionId"), middleware.UserID(c), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// FinalizeAttempt godoc
// @Summary Finalize an attempt
// @Description Computes the score summary and marks the attempt SUBMITTED
// @Tags attempts
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "Attempt ID"
// @Success 200 {object} dto.FinalizeAttemptResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /exam-attempts/{attemptId}/submit [post]
func (h *AttemptHandler) FinalizeAttempt(c *fiber.Ctx) error {
	resp, err := h.service.FinalizeAttempt(c.UserContext(), middleware.IDParam(c, "attemptId"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ListAttempts godoc
// @Summary List my attempts
// @Tags attempts
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} dto.AttemptListResponse
// @Router /exam-attempts [get]
func (h *AttemptHandler) ListAttempts(c *fiber.Ctx) error {
	resp, err := h.service.ListAttempts(c.UserContext(), middleware.UserID(c), c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GetAttemptDetail godoc
// @Summary Get attempt detail
// @Description The attempt with its answers laid out along the exam tree
// @Tags attempts
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "Attempt ID"
// @Success 200 {object} dto.AttemptDetailResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /exam-attempts/{attemptId} [get]
func (h *AttemptHandler) GetAttemptDetail(c *fiber.Ctx) error {
	resp, err := h.service.GetAttemptDetail(c.UserContext(), middleware.IDParam(c, "attemptId"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
