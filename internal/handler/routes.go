package handler

import (
	"exam-engine/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups the route handlers registered by RegisterRoutes.
type Handlers struct {
	Exams    *ExamHandler
	Attempts *AttemptHandler
	Admin    *AdminHandler
}

// RegisterRoutes mounts the API under /api.
func RegisterRoutes(app *fiber.App, h Handlers, verifier middleware.TokenVerifier) {
	api := app.Group("/api")
	protected := middleware.Protected(verifier)

	exams := api.Group("/exams")
	exams.Get("/", h.Exams.ListExams)
	exams.Get("/:examId", middleware.ValidateIDParams("examId"), middleware.OptionalAuth(verifier), h.Exams.GetExamDetail)
	exams.Get("/:examId/sections/:sectionId", middleware.ValidateIDParams("examId", "sectionId"), h.Exams.GetSectionDetail)
	exams.Post("/:examId/start", protected, middleware.ValidateIDParams("examId"), h.Attempts.StartAttempt)

	attempts := api.Group("/exam-attempts", protected)
	attempts.Get("/", h.Attempts.ListAttempts)
	attempts.Get("/:attemptId", middleware.ValidateIDParams("attemptId"), h.Attempts.GetAttemptDetail)
	attempts.Post("/:attemptId/sections/:sectionId/submit", middleware.ValidateIDParams("attemptId", "sectionId"), h.Attempts.SubmitSection)
	attempts.Post("/:attemptId/submit", middleware.ValidateIDParams("attemptId"), h.Attempts.FinalizeAttempt)

	admin := api.Group("/admin", protected, middleware.RequireRole(middleware.RoleAdmin))
	admin.Get("/exams", h.Admin.ListExams)
	admin.Post("/exams/import", h.Admin.ImportExams)
	admin.Patch("/exams/:examId", middleware.ValidateIDParams("examId"), h.Admin.UpdateExam)
	admin.Delete("/exams/:examId", middleware.ValidateIDParams("examId"), h.Admin.DeleteExam)
	admin.Get("/exams/:examId/sections/:sectionId", middleware.ValidateIDParams("examId", "sectionId"), h.Admin.GetSectionDetail)
	admin.Get("/exam-attempts", h.Admin.ListAttempts)
	admin.Get("/exam-attempts/export", h.Admin.ExportAttempts)
	admin.Get("/exam-attempts/:attemptId", middleware.ValidateIDParams("attemptId"), h.Admin.GetAttemptDetail)
}
