// internal/workers/compliance/monitoring-rules/defaults.go
package monitoringrules

import "fleet-compliance/internal/models"

// DefaultRules returns the built-in expiry rule of each compliance domain. Level day
// offsets follow the regulatory warning windows; -1 fires the day after expiry.
func DefaultRules() []models.MonitoringRule {
	owner := []models.RecipientRole{models.RoleVehicleOwner}
	ownerAndTeam := []models.RecipientRole{models.RoleVehicleOwner, models.RoleComplianceTeam}
	escalated := []models.RecipientRole{models.RoleVehicleOwner, models.RoleComplianceTeam, models.RoleOperationsManager}

	return []models.MonitoringRule{
		{
			ID:               "franchise-expiry",
			Name:             "LTFRB franchise expiry",
			Domain:           models.DomainFranchise,
			TriggerCondition: models.TriggerDaysBeforeExpiry,
			CheckFrequency:   models.FrequencyDaily,
			Enabled:          true,
			EscalationLevels: []models.EscalationLevel{
				{Level: 1, DaysFromExpiry: 60, Recipients: owner, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "franchise_renewal_reminder", Priority: "normal"}),
				}},
				{Level: 2, DaysFromExpiry: 30, Recipients: ownerAndTeam, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "franchise_renewal_reminder", Priority: "high"}),
					models.InAppAction(models.InAppConfig{Template: "franchise_renewal_reminder", Severity: models.SeverityWarning}),
				}},
				{Level: 3, DaysFromExpiry: 7, Recipients: escalated, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "franchise_expiry_critical", Priority: "high"}),
					models.SMSAction(models.SMSConfig{Template: "franchise_expiry_critical"}),
				}},
				{Level: 4, DaysFromExpiry: -1, Recipients: escalated, Actions: []models.Action{
					models.DisableVehicleAction("LTFRB franchise expired"),
					models.SMSAction(models.SMSConfig{Template: "franchise_expired"}),
					models.ReportAction(models.ReportConfig{ReportType: "franchise_expiry", Format: "pdf"}, models.RoleLegalTeam),
				}},
			},
		},
		{
			ID:               "registration-expiry",
			Name:             "LTO registration and licence expiry",
			Domain:           models.DomainRegistration,
			TriggerCondition: models.TriggerDaysBeforeExpiry,
			CheckFrequency:   models.FrequencyDaily,
			Enabled:          true,
			EscalationLevels: []models.EscalationLevel{
				{Level: 1, DaysFromExpiry: 60, Recipients: owner, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "registration_renewal_reminder"}),
				}},
				{Level: 2, DaysFromExpiry: 7, Recipients: escalated, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "registration_expiry_critical", Priority: "high"}),
					models.SMSAction(models.SMSConfig{Template: "registration_expiry_critical"}),
				}},
				{Level: 3, DaysFromExpiry: -1, Recipients: escalated, Actions: []models.Action{
					models.DisableVehicleAction("LTO registration expired"),
					models.SuspendDriverAction("driver licence expired"),
					models.InAppAction(models.InAppConfig{Template: "registration_expired", Severity: models.SeverityCritical}),
				}},
			},
		},
		{
			ID:               "insurance-expiry",
			Name:             "CTPL insurance expiry",
			Domain:           models.DomainInsurance,
			TriggerCondition: models.TriggerDaysBeforeExpiry,
			CheckFrequency:   models.FrequencyDaily,
			Enabled:          true,
			EscalationLevels: []models.EscalationLevel{
				{Level: 1, DaysFromExpiry: 45, Recipients: owner, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "insurance_renewal_reminder"}),
				}},
				{Level: 2, DaysFromExpiry: 7, Recipients: escalated, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "insurance_expiry_critical", Priority: "high"}),
					models.SMSAction(models.SMSConfig{Template: "insurance_expiry_critical"}),
				}},
				{Level: 3, DaysFromExpiry: -1, Recipients: escalated, Actions: []models.Action{
					models.DisableVehicleAction("CTPL insurance expired"),
					models.ReportAction(models.ReportConfig{ReportType: "insurance_lapse", Format: "pdf"}, models.RoleLegalTeam),
				}},
			},
		},
		{
			ID:               "environmental-expiry",
			Name:             "Emission test expiry",
			Domain:           models.DomainEnvironmental,
			TriggerCondition: models.TriggerDaysBeforeExpiry,
			CheckFrequency:   models.FrequencyWeekly,
			Enabled:          true,
			EscalationLevels: []models.EscalationLevel{
				{Level: 1, DaysFromExpiry: 30, Recipients: owner, Actions: []models.Action{
					models.EmailAction(models.EmailConfig{Template: "emission_test_reminder"}),
				}},
				{Level: 2, DaysFromExpiry: 7, Recipients: ownerAndTeam, Actions: []models.Action{
					models.SMSAction(models.SMSConfig{Template: "emission_test_reminder"}),
				}},
				{Level: 3, DaysFromExpiry: -1, Recipients: escalated, Actions: []models.Action{
					models.InAppAction(models.InAppConfig{Template: "emission_test_expired", Severity: models.SeverityCritical}),
				}},
			},
		},
	}
}
