// Package web provides HTTP handlers and REST API endpoints for transaction
// workflow management.
package web

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/engine"
	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/report"
)

type APIHandlers struct {
	catalog   *catalog.Catalog
	engine    *engine.Engine
	monitor   *engine.Monitor
	reports   *report.Generator
	validator *validator.Validate
}

func NewAPIHandlers(
	cat *catalog.Catalog,
	eng *engine.Engine,
	monitor *engine.Monitor,
	reports *report.Generator,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		catalog:   cat,
		engine:    eng,
		monitor:   monitor,
		reports:   reports,
		validator: validator,
	}
}

// GetTemplates lists registered templates, optionally filtered by
// transaction type.
func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	transactionType := models.TransactionType(c.Query("type"))

	templates := h.catalog.ListByType(transactionType)

	summaries := make([]TemplateSummary, 0, len(templates))
	for _, template := range templates {
		summaries = append(summaries, TransformTemplateSummary(template))
	}

	return c.JSON(fiber.Map{
		"templates":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.catalog.Get(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) RegisterTemplate(c fiber.Ctx) error {
	var template models.WorkflowTemplate

	if err := c.Bind().JSON(&template); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.catalog.Register(&template); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetTransactions(c fiber.Ctx) error {
	transactions, err := h.engine.Transactions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"total_count":  len(transactions),
	})
}

func (h *APIHandlers) GetTransaction(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Transaction ID is required")
	}

	transaction, err := h.engine.Transaction(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(transaction)
}

func (h *APIHandlers) CreateTransaction(c fiber.Ctx) error {
	var req CreateTransactionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	contractDate, err := ParseDate(req.ContractDate)
	if err != nil {
		return badRequest(c, "Invalid contract_date: "+err.Error())
	}

	closingDate, err := ParseDate(req.ClosingDate)
	if err != nil {
		return badRequest(c, "Invalid closing_date: "+err.Error())
	}

	transaction, err := h.engine.CreateTransaction(
		c.Context(),
		req.WorkflowID,
		req.PropertyAddress,
		models.TransactionType(req.TransactionType),
		contractDate,
		closingDate,
	)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(transaction)
}

func (h *APIHandlers) StartMilestone(c fiber.Ctx) error {
	transactionID := c.Params("id")
	milestoneID := c.Params("milestoneId")

	changed, err := h.engine.StartMilestone(c.Context(), transactionID, milestoneID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransitionResponse{
		TransactionID: transactionID,
		EntityID:      milestoneID,
		Changed:       changed,
	})
}

func (h *APIHandlers) CompleteMilestone(c fiber.Ctx) error {
	transactionID := c.Params("id")
	milestoneID := c.Params("milestoneId")

	changed, err := h.engine.CompleteMilestone(c.Context(), transactionID, milestoneID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransitionResponse{
		TransactionID: transactionID,
		EntityID:      milestoneID,
		Changed:       changed,
	})
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	transactionID := c.Params("id")
	taskID := c.Params("taskId")

	var req CompleteTaskRequest

	// The body is optional; a missing body means no notes.
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	changed, err := h.engine.CompleteTask(c.Context(), transactionID, taskID, req.Notes)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransitionResponse{
		TransactionID: transactionID,
		EntityID:      taskID,
		Changed:       changed,
	})
}

func (h *APIHandlers) CancelTransaction(c fiber.Ctx) error {
	transactionID := c.Params("id")

	changed, err := h.engine.CancelTransaction(c.Context(), transactionID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransitionResponse{
		TransactionID: transactionID,
		Changed:       changed,
	})
}

func (h *APIHandlers) GetTransactionReport(c fiber.Ctx) error {
	transactionID := c.Params("id")

	transactionReport, err := h.reports.TransactionReport(c.Context(), transactionID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(transactionReport)
}

// GetOverdueTasks lists overdue tasks across all transactions, or for one
// transaction when the query parameter is present.
func (h *APIHandlers) GetOverdueTasks(c fiber.Ctx) error {
	items, err := h.monitor.GetOverdueTasks(c.Context(), c.Query("transaction_id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"overdue_tasks": items,
		"total_count":   len(items),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.engine.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
	})
}
