// internal/sourcing/location/gazetteer.go
package location

import (
	"encoding/json"
	"fmt"
	"os"

	cerrors "githire/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Record is one gazetteer entry. City may be empty for state- or
// country-only records.
type Record struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
}

// Gazetteer is the static city/state/country table plus the region
// abbreviation aliases used during tokenization.
type Gazetteer struct {
	Records       []Record          `json:"records"`
	Abbreviations map[string]string `json:"abbreviations"`
}

const gazetteerSchema = `{
	"type": "object",
	"required": ["records"],
	"properties": {
		"records": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["country"],
				"properties": {
					"city":    {"type": "string"},
					"state":   {"type": "string"},
					"country": {"type": "string", "minLength": 1}
				},
				"additionalProperties": false
			}
		},
		"abbreviations": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

// LoadGazetteer reads and schema-validates the gazetteer file. Any failure
// is a fatal configuration error.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.NewConfigurationError(fmt.Sprintf("gazetteer: %v", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(gazetteerSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, cerrors.NewConfigurationError(fmt.Sprintf("gazetteer schema check: %v", err))
	}
	if !result.Valid() {
		return nil, cerrors.NewConfigurationError(fmt.Sprintf("gazetteer invalid: %v", result.Errors()))
	}

	var gaz Gazetteer
	if err := json.Unmarshal(data, &gaz); err != nil {
		return nil, cerrors.NewConfigurationError(fmt.Sprintf("gazetteer parse: %v", err))
	}
	return &gaz, nil
}
