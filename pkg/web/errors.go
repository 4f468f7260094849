package web

import (
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem, problems.ProblemMediaType)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem, problems.ProblemMediaType)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem, problems.ProblemMediaType)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem, problems.ProblemMediaType)
}

// handleEngineError maps the error taxonomy of both engines onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case task.IsValidationError(err), workflow.IsValidationError(err):
		return badRequest(c, err.Error())
	case task.IsNotFound(err), workflow.IsNotFound(err):
		return notFound(c, err.Error())
	case task.IsConflict(err), workflow.IsConflict(err):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}
