package extract

import (
	"github.com/kaptinlin/jsonschema"
)

// recordSchemaJSON describes one recommendation. lat and lng must come as a pair.
const recordSchemaJSON = `{
	"type": "object",
	"required": ["name", "description", "matchScore", "averagePrice", "transitScore", "walkScore"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"matchScore": {"type": "number", "minimum": 0, "maximum": 100},
		"averagePrice": {"type": "number", "minimum": 0},
		"transitScore": {"type": "number", "minimum": 0, "maximum": 100},
		"walkScore": {"type": "number", "minimum": 0, "maximum": 100},
		"keyFeatures": {"type": "array", "items": {"type": "string"}},
		"trivia": {"type": "string"},
		"lat": {"type": "number", "minimum": -90, "maximum": 90},
		"lng": {"type": "number", "minimum": -180, "maximum": 180},
		"funFacts": {"type": "array", "items": {"type": "string"}}
	},
	"dependentRequired": {
		"lat": ["lng"],
		"lng": ["lat"]
	}
}`

// optionalFields may be omitted or null.
var optionalFields = []string{"keyFeatures", "trivia", "lat", "lng", "funFacts"}

var recordSchema = mustCompile(recordSchemaJSON)

func mustCompile(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(src))
	if err != nil {
		panic("extract: invalid record schema: " + err.Error())
	}
	return schema
}
