package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRuleDescriptor(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		valid     bool
		badFields []string
	}{
		{
			name: "valid franchise rule",
			doc: `{
				"domain": "franchise",
				"triggerCondition": "days_before_expiry",
				"checkFrequency": "daily",
				"escalationLevels": [
					{"level": 1, "daysFromExpiry": 60, "actions": [{"kind": "email_notification", "recipients": ["vehicle_owner"]}]},
					{"level": 2, "daysFromExpiry": -1, "actions": [{"kind": "disable_vehicle"}]}
				],
				"applicability": {"regions": ["NCR"]}
			}`,
			valid: true,
		},
		{
			name:      "missing levels",
			doc:       `{"domain": "insurance", "triggerCondition": "post_expiry", "checkFrequency": "weekly"}`,
			badFields: []string{"(root)"},
		},
		{
			name: "unknown action kind and recipient",
			doc: `{
				"domain": "insurance",
				"triggerCondition": "post_expiry",
				"checkFrequency": "weekly",
				"escalationLevels": [{"level": 1, "daysFromExpiry": 0, "actions": [{"kind": "fax", "recipients": ["mayor"]}]}]
			}`,
			badFields: []string{"escalationLevels.0.actions.0.kind", "escalationLevels.0.actions.0.recipients.0"},
		},
		{
			name:      "bad domain",
			doc:       `{"domain": "tax", "triggerCondition": "post_expiry", "checkFrequency": "daily", "escalationLevels": [{"level": 1, "daysFromExpiry": 0, "actions": []}]}`,
			badFields: []string{"domain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateRuleDescriptor([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
			for _, f := range tt.badFields {
				assert.True(t, result.HasErrors(f), "expected error on %s, got %v", f, result.GetErrorMessages())
			}
		})
	}
}

func TestValidateRuleDescriptor_Malformed(t *testing.T) {
	_, err := ValidateRuleDescriptor([]byte(`{not json`))
	assert.Error(t, err)
}

func TestValidateAgainst(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"vehicleId"},
	}
	result, err := ValidateAgainst(schema, map[string]interface{}{"plateNumber": "ABC-1234"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
