// internal/models/action.go
package models

import (
	"encoding/json"
	"fmt"
)

type ActionKind string

const (
	ActionEmail          ActionKind = "email_notification"
	ActionSMS            ActionKind = "sms_alert"
	ActionInApp          ActionKind = "in_app_notification"
	ActionDisableVehicle ActionKind = "disable_vehicle"
	ActionSuspendDriver  ActionKind = "suspend_driver"
	ActionReport         ActionKind = "generate_report"
	ActionAPICall        ActionKind = "api_call"
)

type RecipientRole string

const (
	RoleVehicleOwner      RecipientRole = "vehicle_owner"
	RoleDriver            RecipientRole = "driver"
	RoleComplianceTeam    RecipientRole = "compliance_team"
	RoleOperationsManager RecipientRole = "operations_manager"
	RoleLegalTeam         RecipientRole = "legal_team"
)

func (r RecipientRole) Valid() bool {
	switch r {
	case RoleVehicleOwner, RoleDriver, RoleComplianceTeam, RoleOperationsManager, RoleLegalTeam:
		return true
	}
	return false
}

type EmailConfig struct {
	Template string `json:"template,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Priority string `json:"priority,omitempty"`
}

type SMSConfig struct {
	Template string `json:"template,omitempty"`
}

type InAppConfig struct {
	Template string   `json:"template,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

type DisableVehicleConfig struct {
	Reason string `json:"reason,omitempty"`
}

type SuspendDriverConfig struct {
	Reason string `json:"reason,omitempty"`
}

type ReportConfig struct {
	ReportType string `json:"reportType,omitempty"`
	Format     string `json:"format,omitempty"` // pdf, xlsx, csv
}

type APICallConfig struct {
	URL    string `json:"url"`
	Agency string `json:"agency,omitempty"`
}

// Action is a tagged union: exactly the payload matching Kind is set.
type Action struct {
	Kind       ActionKind
	Recipients []RecipientRole

	Email          *EmailConfig
	SMS            *SMSConfig
	InApp          *InAppConfig
	DisableVehicle *DisableVehicleConfig
	SuspendDriver  *SuspendDriverConfig
	Report         *ReportConfig
	APICall        *APICallConfig
}

func EmailAction(cfg EmailConfig, to ...RecipientRole) Action {
	return Action{Kind: ActionEmail, Email: &cfg, Recipients: to}
}

func SMSAction(cfg SMSConfig, to ...RecipientRole) Action {
	return Action{Kind: ActionSMS, SMS: &cfg, Recipients: to}
}

func InAppAction(cfg InAppConfig, to ...RecipientRole) Action {
	return Action{Kind: ActionInApp, InApp: &cfg, Recipients: to}
}

func DisableVehicleAction(reason string) Action {
	return Action{Kind: ActionDisableVehicle, DisableVehicle: &DisableVehicleConfig{Reason: reason}}
}

func SuspendDriverAction(reason string) Action {
	return Action{Kind: ActionSuspendDriver, SuspendDriver: &SuspendDriverConfig{Reason: reason}}
}

func ReportAction(cfg ReportConfig, to ...RecipientRole) Action {
	return Action{Kind: ActionReport, Report: &cfg, Recipients: to}
}

func APICallAction(cfg APICallConfig) Action {
	return Action{Kind: ActionAPICall, APICall: &cfg}
}

// payload returns the config for Kind and the number of payloads set.
func (a Action) payload() (interface{}, int) {
	set := 0
	var p interface{}
	check := func(kind ActionKind, isSet bool, v interface{}) {
		if isSet {
			set++
			if a.Kind == kind {
				p = v
			}
		}
	}
	check(ActionEmail, a.Email != nil, a.Email)
	check(ActionSMS, a.SMS != nil, a.SMS)
	check(ActionInApp, a.InApp != nil, a.InApp)
	check(ActionDisableVehicle, a.DisableVehicle != nil, a.DisableVehicle)
	check(ActionSuspendDriver, a.SuspendDriver != nil, a.SuspendDriver)
	check(ActionReport, a.Report != nil, a.Report)
	check(ActionAPICall, a.APICall != nil, a.APICall)
	return p, set
}

func (a Action) Validate() error {
	p, set := a.payload()
	if set != 1 || p == nil {
		return fmt.Errorf("action %q must carry exactly its own payload", a.Kind)
	}
	for _, r := range a.Recipients {
		if !r.Valid() {
			return fmt.Errorf("action %q: unknown recipient role %q", a.Kind, r)
		}
	}
	if a.Kind == ActionAPICall && a.APICall.URL == "" {
		return fmt.Errorf("action %q: url is required", a.Kind)
	}
	return nil
}

type actionJSON struct {
	Kind       ActionKind      `json:"kind"`
	Config     json.RawMessage `json:"config,omitempty"`
	Recipients []RecipientRole `json:"recipients,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	p, _ := a.payload()
	out := actionJSON{Kind: a.Kind, Recipients: a.Recipients}
	if p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out.Config = raw
	}
	return json.Marshal(out)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*a = Action{Kind: in.Kind, Recipients: in.Recipients}

	var target interface{}
	switch in.Kind {
	case ActionEmail:
		a.Email = &EmailConfig{}
		target = a.Email
	case ActionSMS:
		a.SMS = &SMSConfig{}
		target = a.SMS
	case ActionInApp:
		a.InApp = &InAppConfig{}
		target = a.InApp
	case ActionDisableVehicle:
		a.DisableVehicle = &DisableVehicleConfig{}
		target = a.DisableVehicle
	case ActionSuspendDriver:
		a.SuspendDriver = &SuspendDriverConfig{}
		target = a.SuspendDriver
	case ActionReport:
		a.Report = &ReportConfig{}
		target = a.Report
	case ActionAPICall:
		a.APICall = &APICallConfig{}
		target = a.APICall
	default:
		return fmt.Errorf("unknown action kind %q", in.Kind)
	}

	if len(in.Config) == 0 || string(in.Config) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Config, target); err != nil {
		return fmt.Errorf("action %q config: %w", in.Kind, err)
	}
	return nil
}
