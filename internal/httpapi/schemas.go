package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const importSchemaJSON = `{
	"type": "object",
	"required": ["calendarUrl", "databaseId"],
	"properties": {
		"calendarUrl": {"type": "string", "minLength": 1},
		"databaseId": {"type": "string", "minLength": 1},
		"dryRun": {"type": "boolean"}
	}
}`

const settingsSchemaJSON = `{
	"type": "object",
	"properties": {
		"canvasCalendarUrl": {"type": ["string", "null"]},
		"selectedDatabaseId": {"type": ["string", "null"]},
		"classes": {"type": "array", "items": {"type": "string"}}
	}
}`

func compileSchema(name, doc string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, parsed); err != nil {
		return nil, fmt.Errorf("add %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return schema, nil
}

func validateBody(schema *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schema.Validate(inst)
}
