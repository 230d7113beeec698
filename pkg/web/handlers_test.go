package web_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/engine"
	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence/file"
	"github.com/dealflow/dealflow/pkg/report"
	"github.com/dealflow/dealflow/pkg/web"
)

func testTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:              "purchase-standard",
		Name:            "Standard Purchase",
		TransactionType: models.TransactionTypePurchase,
		TimelineDays:    30,
		Milestones: []*models.MilestoneTemplate{
			{
				Name:          "Contract Execution",
				Order:         1,
				EstimatedDays: 10,
				AutoStart:     true,
				AutoComplete:  true,
				Tasks: []*models.TaskTemplate{
					{ID: "sign", Name: "Sign contract", Priority: models.TaskPriorityHigh, Kind: models.TaskKindDocument},
					{ID: "deposit", Name: "Deposit earnest money", Priority: models.TaskPriorityMedium, Kind: models.TaskKindManual, DependsOn: []string{"sign"}},
				},
			},
			{
				Name:          "Due Diligence",
				Order:         2,
				EstimatedDays: 20,
				Tasks: []*models.TaskTemplate{
					{ID: "inspect", Name: "Schedule inspection", Priority: models.TaskPriorityHigh, Kind: models.TaskKindManual},
				},
			},
		},
	}
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()

	cat := catalog.New(logger)
	require.NoError(t, cat.Register(testTemplate()))

	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewRealClock()

	eng := engine.New(cat, store, nil, clock, logger)
	monitor := engine.NewMonitor(eng)
	reports := report.NewGenerator(store, clock, logger)

	handlers := web.NewAPIHandlers(cat, eng, monitor, reports, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	tpl := app.Group("/templates")
	tpl.Get("/", handlers.GetTemplates)
	tpl.Post("/", handlers.RegisterTemplate)
	tpl.Get("/:id", handlers.GetTemplate)

	tx := app.Group("/transactions")
	tx.Get("/", handlers.GetTransactions)
	tx.Post("/", handlers.CreateTransaction)
	tx.Get("/:id", handlers.GetTransaction)
	tx.Post("/:id/cancel", handlers.CancelTransaction)
	tx.Post("/:id/milestones/:milestoneId/start", handlers.StartMilestone)
	tx.Post("/:id/milestones/:milestoneId/complete", handlers.CompleteMilestone)
	tx.Post("/:id/tasks/:taskId/complete", handlers.CompleteTask)
	tx.Get("/:id/report", handlers.GetTransactionReport)

	app.Get("/overdue-tasks", handlers.GetOverdueTasks)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, fiber.TestConfig{
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	return resp, decoded
}

func createTransaction(t *testing.T, app *fiber.App) map[string]any {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/transactions", web.CreateTransactionRequest{
		WorkflowID:      "purchase-standard",
		PropertyAddress: "123 Main St",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return body
}

func milestoneTasks(t *testing.T, transaction map[string]any, index int) (string, []any) {
	t.Helper()

	milestones, ok := transaction["milestones"].([]any)
	require.True(t, ok)
	require.Greater(t, len(milestones), index)

	milestone, ok := milestones[index].(map[string]any)
	require.True(t, ok)

	tasks, ok := milestone["tasks"].([]any)
	require.True(t, ok)

	return milestone["id"].(string), tasks
}

func taskID(t *testing.T, tasks []any, index int) string {
	t.Helper()

	task, ok := tasks[index].(map[string]any)
	require.True(t, ok)

	return task["id"].(string)
}

func TestAPI_GetTemplates(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/templates/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1, body["total_count"], 0.01)

	resp, _ = doJSON(t, app, http.MethodGet, "/templates/purchase-standard", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RegisterTemplate(t *testing.T) {
	app := setupTestApp(t)

	template := testTemplate()
	template.ID = "sale-standard"
	template.TransactionType = models.TransactionTypeSale

	resp, _ := doJSON(t, app, http.MethodPost, "/templates/", template)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Re-registering the same id is a conflict.
	resp, _ = doJSON(t, app, http.MethodPost, "/templates/", template)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CreateTransaction(t *testing.T) {
	app := setupTestApp(t)

	body := createTransaction(t, app)

	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "purchase-standard", body["workflow_id"])
	assert.Equal(t, "123 Main St", body["property_address"])

	milestones, ok := body["milestones"].([]any)
	require.True(t, ok)
	assert.Len(t, milestones, 2)
}

func TestAPI_CreateTransaction_Validation(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/transactions", web.CreateTransactionRequest{
		WorkflowID: "purchase-standard",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions", web.CreateTransactionRequest{
		WorkflowID:      "missing",
		PropertyAddress: "123 Main St",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions", web.CreateTransactionRequest{
		WorkflowID:      "purchase-standard",
		PropertyAddress: "123 Main St",
		TransactionType: "sale",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions", web.CreateTransactionRequest{
		WorkflowID:      "purchase-standard",
		PropertyAddress: "123 Main St",
		ContractDate:    "not a date",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CompleteTask_Flow(t *testing.T) {
	app := setupTestApp(t)

	transaction := createTransaction(t, app)
	txID := transaction["id"].(string)

	_, tasks := milestoneTasks(t, transaction, 0)
	sign := taskID(t, tasks, 0)
	deposit := taskID(t, tasks, 1)

	// The dependent task is gated until its dependency completes.
	resp, _ := doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/tasks/"+deposit+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/tasks/"+sign+"/complete",
		web.CompleteTaskRequest{Notes: "signed"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])

	// Completing again reports no change.
	resp, body = doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/tasks/"+sign+"/complete", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["changed"])

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/tasks/"+deposit+"/complete", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Both tasks done: the first milestone auto-completed.
	resp, loaded := doJSON(t, app, http.MethodGet, "/transactions/"+txID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	milestones := loaded["milestones"].([]any)
	first := milestones[0].(map[string]any)
	assert.Equal(t, string(models.MilestoneStatusCompleted), first["status"])
	assert.InDelta(t, 50, loaded["overall_progress"], 0.01)
}

func TestAPI_StartMilestone_Gated(t *testing.T) {
	app := setupTestApp(t)

	transaction := createTransaction(t, app)
	txID := transaction["id"].(string)

	secondID, _ := milestoneTasks(t, transaction, 1)

	resp, _ := doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/milestones/"+secondID+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/milestones/unknown/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CancelTransaction(t *testing.T) {
	app := setupTestApp(t)

	transaction := createTransaction(t, app)
	txID := transaction["id"].(string)

	resp, body := doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])

	// A cancelled transaction rejects further mutation.
	_, tasks := milestoneTasks(t, transaction, 0)
	resp, _ = doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/tasks/"+taskID(t, tasks, 0)+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/transactions/"+txID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_TransactionReport(t *testing.T) {
	app := setupTestApp(t)

	transaction := createTransaction(t, app)
	txID := transaction["id"].(string)

	resp, body := doJSON(t, app, http.MethodGet, "/transactions/"+txID+"/report", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, txID, body["transaction_id"])
	assert.Equal(t, "low", body["risk_level"])

	resp, _ = doJSON(t, app, http.MethodGet, "/transactions/missing/report", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_OverdueTasks_Empty(t *testing.T) {
	app := setupTestApp(t)

	createTransaction(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/overdue-tasks", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0, body["total_count"], 0.01)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_GetTransaction_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/transactions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
