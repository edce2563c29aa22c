// internal/workers/communication/dispatch-notification/templates.go
package dispatchnotification

import (
	"fmt"
	"strings"
)

type template struct {
	Subject string
	Body    string
}

var templates = map[string]template{
	TypeComplianceExpiring: {
		Subject: "{{domain}} compliance expiring in {{daysUntilExpiry}} days",
		Body:    "The {{domain}} document {{referenceNumber}} of {{entityId}} expires on {{expiryDate}} ({{daysUntilExpiry}} days). Escalation level {{level}}. Please renew before the deadline.",
	},
	TypeComplianceExpired: {
		Subject: "{{domain}} compliance expired",
		Body:    "The {{domain}} document {{referenceNumber}} of {{entityId}} expired on {{expiryDate}}. Operations are restricted until it is renewed.",
	},
	TypeVehicleDisabled: {
		Subject: "Vehicle {{entityId}} disabled",
		Body:    "Vehicle {{entityId}} was disabled: {{reason}}.",
	},
	TypeDriverSuspended: {
		Subject: "Driver {{entityId}} suspended",
		Body:    "Driver {{entityId}} was suspended: {{reason}}.",
	},
	TypeCodingViolation: {
		Subject: "Number coding violation {{violationId}}",
		Body:    "Vehicle {{plateNumber}} (ending {{lastDigit}}) was detected inside a number-coding zone during coding hours. Fine: PHP {{fineAmount}}, due {{dueDate}}.",
	},
	TypeComplianceAlert: {
		Subject: "Compliance alert for {{entityId}}",
		Body:    "{{message}}",
	},
}

// templateAliases maps the template names used by the built-in monitoring rules.
var templateAliases = map[string]string{
	"franchise_renewal_reminder":    TypeComplianceExpiring,
	"franchise_expiry_critical":     TypeComplianceExpiring,
	"franchise_expired":             TypeComplianceExpired,
	"registration_renewal_reminder": TypeComplianceExpiring,
	"registration_expiry_critical":  TypeComplianceExpiring,
	"registration_expired":          TypeComplianceExpired,
	"insurance_renewal_reminder":    TypeComplianceExpiring,
	"insurance_expiry_critical":     TypeComplianceExpiring,
	"emission_test_reminder":        TypeComplianceExpiring,
	"emission_test_expired":         TypeComplianceExpired,
}

func templateFor(notificationType string) template {
	if t, ok := templates[notificationType]; ok {
		return t
	}
	if alias, ok := templateAliases[notificationType]; ok {
		return templates[alias]
	}
	return templates[TypeComplianceAlert]
}

// renderTemplate substitutes {{key}} placeholders and drops the ones without a value.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		switch typed := v.(type) {
		case string:
			value = typed
		case int:
			value = fmt.Sprintf("%d", typed)
		case float64:
			value = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", typed), "0"), ".")
		case nil:
		default:
			value = fmt.Sprintf("%v", typed)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}
	return result
}
