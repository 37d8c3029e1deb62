package router

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const statusSchemaURL = "tramcast://schemas/status.json"

// statusSchema is the structure shared by every status topic.
const statusSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "departAt": {"type": ["string", "null"], "format": "date-time"},
    "timeLeftMs": {"type": ["integer", "null"]}
  }
}`

func compileStatusSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(statusSchemaURL, strings.NewReader(statusSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile(statusSchemaURL)
}
