package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/engine"
	"github.com/dealflow/dealflow/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto RFC 7807
// responses. Unknown ids are 404s, validation problems are 400s, and
// forbidden transitions are 409s.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsTransactionNotFound(err):
		return notFound(c, "transaction not found")

	case catalog.IsTemplateNotFound(err):
		return notFound(c, "workflow template not found")

	case engine.IsNotFound(err):
		return notFound(c, err.Error())

	case catalog.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrTemplateMismatch):
		return badRequest(c, err.Error())

	case engine.IsDependencyNotSatisfied(err):
		return conflict(c, "dependency_not_satisfied", err.Error())

	case engine.IsIncompleteTasks(err):
		return conflict(c, "incomplete_tasks", err.Error())

	case engine.IsInvalidTransition(err):
		return conflict(c, "invalid_transition", err.Error())

	case errors.Is(err, catalog.ErrTemplateAlreadyExists):
		return conflict(c, "template_already_exists", err.Error())

	default:
		return internalError(c, err)
	}
}
