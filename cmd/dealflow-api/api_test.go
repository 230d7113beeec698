package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/cmd"
	"github.com/dealflow/dealflow/pkg/persistence/file"
)

const testTemplateJSON = `{
	"id": "purchase-standard",
	"name": "Standard Purchase",
	"transaction_type": "purchase",
	"timeline_days": 30,
	"milestones": [
		{
			"name": "Contract Execution",
			"order": 1,
			"estimated_days": 10,
			"auto_start": true,
			"tasks": [
				{"id": "sign", "name": "Sign contract", "priority": "high", "kind": "document"}
			]
		}
	]
}`

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()

	templatesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "purchase.json"), []byte(testTemplateJSON), 0o644))

	cat := catalog.New(logger)
	require.NoError(t, cat.LoadDirectory(templatesDir))

	eventBus, err := cmd.NewEventBus("memory", "dealflow-api", logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = eventBus.Close()
	})

	api := NewAPI(
		logger,
		cat,
		file.NewPersistence(t.TempDir()),
		eventBus,
	)

	return api.App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Dealflow API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_GetTemplates(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/templates/", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 1, body["total_count"], 0.01)
}

func TestAPI_GetTransactions_Empty(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/transactions/", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 0, body["total_count"], 0.01)
}
