package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects Config into a draft-07 JSON Schema keyed by yaml
// names. Known sections are closed; the top level stays open for
// extension sections such as logging.
func GenerateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		ExpandedStruct: true,
	}
	s := reflector.Reflect(&Config{})
	s.Version = "http://json-schema.org/draft-07/schema#"
	s.Title = "tabwatt configuration"
	s.Description = "tabwattd settings, power calculator constants and extension sections."
	s.AdditionalProperties = jsonschema.TrueSchema
	return json.MarshalIndent(s, "", "  ")
}
