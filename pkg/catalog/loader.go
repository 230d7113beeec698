package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dealflow/dealflow/pkg/models"
)

// templateSchema is the JSON Schema every template document must satisfy
// before it is unmarshalled and registered. Structural validation here keeps
// malformed documents from producing half-decoded templates.
const templateSchema = `{
	"type": "object",
	"required": ["id", "name", "transaction_type", "timeline_days", "milestones"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 3},
		"description": {"type": "string"},
		"transaction_type": {"type": "string", "enum": ["purchase", "sale", "wholesale", "refinance"]},
		"timeline_days": {"type": "integer", "minimum": 1},
		"milestones": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "order", "estimated_days", "tasks"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"order": {"type": "integer", "minimum": 1},
					"estimated_days": {"type": "integer", "minimum": 1},
					"is_critical": {"type": "boolean"},
					"can_run_parallel": {"type": "boolean"},
					"auto_start": {"type": "boolean"},
					"auto_complete": {"type": "boolean"},
					"depends_on_orders": {"type": "array", "items": {"type": "integer"}},
					"tasks": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["id", "name", "priority", "kind"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"name": {"type": "string", "minLength": 1},
								"priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
								"kind": {"type": "string", "enum": ["manual", "document", "automated", "approval"]},
								"required_documents": {"type": "array", "items": {"type": "string"}},
								"completion_criteria": {"type": "array", "items": {"type": "string"}},
								"depends_on": {"type": "array", "items": {"type": "string"}},
								"blocks": {"type": "array", "items": {"type": "string"}}
							}
						}
					}
				}
			}
		}
	}
}`

// LoadDirectory reads every *.json template document under dir, validates it
// against the template schema, and registers it. Loading stops at the first
// invalid document so a broken template can never be silently skipped.
func (c *Catalog) LoadDirectory(dir string) error {
	root := os.DirFS(dir)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list template files: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(templateSchema)

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", file, err)
		}

		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
		if err != nil {
			return NewValidationError(file, "schema validation failed", fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
		}

		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}

			return NewValidationError(file, strings.Join(details, "; "), ErrInvalidTemplate)
		}

		var template models.WorkflowTemplate

		if err := json.Unmarshal(data, &template); err != nil {
			return NewValidationError(file, "failed to decode template", fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
		}

		if err := c.Register(&template); err != nil {
			return err
		}

		c.logger.Info("Loaded workflow template", "file", file, "template_id", template.ID)
	}

	return nil
}
