package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// MonitoringRuleSchema is the JSON Schema of a monitoring rule descriptor.
const MonitoringRuleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["domain", "triggerCondition", "checkFrequency", "escalationLevels"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string"},
    "domain": {"enum": ["franchise", "registration", "insurance", "environmental"]},
    "triggerCondition": {"enum": ["days_before_expiry", "post_expiry", "status_change"]},
    "checkFrequency": {"enum": ["daily", "weekly", "monthly", "quarterly"]},
    "enabled": {"type": "boolean"},
    "escalationLevels": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["level", "daysFromExpiry", "actions"],
        "properties": {
          "level": {"type": "integer", "minimum": 1},
          "daysFromExpiry": {"type": "integer"},
          "recipients": {"$ref": "#/definitions/recipients"},
          "actions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["kind"],
              "properties": {
                "kind": {"enum": ["email_notification", "sms_alert", "in_app_notification", "disable_vehicle", "suspend_driver", "generate_report", "api_call"]},
                "config": {"type": "object"},
                "recipients": {"$ref": "#/definitions/recipients"}
              }
            }
          }
        }
      }
    },
    "applicability": {
      "type": "object",
      "properties": {
        "regions": {"type": "array", "items": {"type": "string"}},
        "ownershipTypes": {"type": "array", "items": {"type": "string"}},
        "serviceTypes": {"type": "array", "items": {"type": "string"}}
      }
    }
  },
  "definitions": {
    "recipients": {
      "type": "array",
      "items": {"enum": ["vehicle_owner", "driver", "compliance_team", "operations_manager", "legal_team"]}
    }
  }
}`

var monitoringRuleSchema = mustSchema(MonitoringRuleSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return s
}

// ValidateRuleDescriptor validates a raw monitoring rule descriptor document.
func ValidateRuleDescriptor(document []byte) (*ValidationResult, error) {
	return validate(monitoringRuleSchema, gojsonschema.NewBytesLoader(document))
}

// ValidateAgainst validates a Go value (map, struct) against an arbitrary schema.
func ValidateAgainst(schema map[string]interface{}, document interface{}) (*ValidationResult, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return validate(s, gojsonschema.NewGoLoader(document))
}

func validate(schema *gojsonschema.Schema, document gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := schema.Validate(document)
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out, nil
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors reports whether field or any of its children failed validation.
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}
