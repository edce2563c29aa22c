// internal/workers/coding/check-number-coding/detector.go
package checknumbercoding

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	resolvecodingrule "fleet-compliance/internal/workers/coding/resolve-coding-rule"
	violationledger "fleet-compliance/internal/workers/violations/violation-ledger"
)

// Notifier delivers a notification on its channels.
type Notifier interface {
	Dispatch(ctx context.Context, n models.Notification) (*models.DispatchResult, error)
}

// Detector decides whether a vehicle at a location is violating number coding and
// records the violation when it is.
type Detector struct {
	config     *Config
	resolver   *resolvecodingrule.Resolver
	exemptions repository.ExemptionStore
	ledger     *violationledger.Ledger
	notifier   Notifier
	logger     logger.Logger
	now        func() time.Time
}

func NewDetector(config *Config, resolver *resolvecodingrule.Resolver, exemptions repository.ExemptionStore, ledger *violationledger.Ledger, notifier Notifier, log logger.Logger) *Detector {
	return &Detector{
		config:     config,
		resolver:   resolver,
		exemptions: exemptions,
		ledger:     ledger,
		notifier:   notifier,
		logger:     log,
		now:        time.Now,
	}
}

// Check evaluates req at the current time.
func (d *Detector) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	return d.CheckAt(ctx, req, d.now())
}

// CheckAt evaluates req at now. A violation is recorded before any notification is sent,
// and a failed notification never undoes it.
func (d *Detector) CheckAt(ctx context.Context, req CheckRequest, now time.Time) (*CheckResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	digit, ok := LastDigit(req.PlateNumber)
	if !ok {
		return nil, errors.NewValidationError("plateNumber", fmt.Sprintf("%q has no digit", req.PlateNumber))
	}

	resp := &CheckResponse{CanProceed: true, Warnings: []string{}}

	rule, err := d.resolver.Resolve(ctx, req.RegionID, req.Location)
	if err != nil {
		return nil, errors.NewUnavailableError("coding-rules", err)
	}
	if rule == nil {
		metrics.CodingChecks.WithLabelValues("no_rule").Inc()
		return resp, nil
	}

	banned := resolvecodingrule.BannedDigitsFor(*rule, now)
	isBanned := containsDigit(banned, digit)

	if !resolvecodingrule.InEffect(*rule, now) {
		if isBanned && resolvecodingrule.StartsWithin(*rule, now, d.config.StartWarning) {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(
				"number coding starts at %s for plates ending in %s", rule.CodingHours.Start, joinDigits(banned)))
		}
		metrics.CodingChecks.WithLabelValues("not_in_effect").Inc()
		return resp, nil
	}
	if !isBanned {
		metrics.CodingChecks.WithLabelValues("allowed").Inc()
		return resp, nil
	}

	exemption, err := d.exemption(ctx, *rule, req, now)
	if err != nil {
		return nil, err
	}
	if exemption != "" {
		resp.Exemption = exemption
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("plate ending in %d is coded today; exempt (%s)", digit, exemption))
		metrics.CodingChecks.WithLabelValues("exempt").Inc()
		return resp, nil
	}

	details, err := d.record(ctx, *rule, req, digit, banned, now)
	if err != nil {
		return nil, err
	}
	resp.HasViolation = true
	resp.CanProceed = false
	resp.ViolationDetails = details
	metrics.CodingChecks.WithLabelValues("violation").Inc()

	if !details.AlreadyRecorded {
		if err := d.notify(ctx, req, details); err != nil {
			d.logger.Warn("coding violation notification failed", map[string]interface{}{
				"violationId": details.ViolationID,
				"vehicleId":   req.VehicleID,
				"error":       err.Error(),
			})
			resp.Warnings = append(resp.Warnings, "violation recorded but the notification could not be delivered")
		}
	}
	return resp, nil
}

// exemption returns the reason a banned plate may proceed, or "" when none applies.
// Approved requests are checked first, then plate patterns, then holidays.
func (d *Detector) exemption(ctx context.Context, rule models.CodingRule, req CheckRequest, now time.Time) (string, error) {
	requests, err := d.exemptions.ListCovering(ctx, req.VehicleID, req.DriverID, now)
	if err != nil {
		return "", errors.NewUnavailableError("exemptions", err)
	}
	for _, e := range requests {
		if !e.Covers(now) || !e.AppliesTo(req.VehicleID, req.DriverID) {
			continue
		}
		if err := d.exemptions.IncrementUsage(ctx, e.ID); err != nil {
			d.logger.Warn("failed to count exemption usage", map[string]interface{}{
				"exemptionId": e.ID,
				"error":       err.Error(),
			})
		}
		return ExemptApprovedRequest, nil
	}

	plate := normalizePlate(req.PlateNumber)
	for _, pattern := range rule.ExemptPlatePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			d.logger.Warn("invalid exempt plate pattern", map[string]interface{}{
				"codingRuleId": rule.ID,
				"pattern":      pattern,
			})
			continue
		}
		if re.MatchString(plate) || re.MatchString(req.PlateNumber) {
			return ExemptPlatePattern, nil
		}
	}

	if resolvecodingrule.IsHoliday(rule, now) {
		return ExemptHoliday, nil
	}
	return "", nil
}

func (d *Detector) record(ctx context.Context, rule models.CodingRule, req CheckRequest, digit int, banned []int, now time.Time) (*ViolationDetails, error) {
	from := now.Add(-d.config.RepeatWindow)
	prior, err := d.ledger.CountInWindow(ctx, req.VehicleID, models.DomainNumberCoding, from, now)
	if err != nil {
		return nil, errors.NewUnavailableError("violation-ledger", err)
	}
	// The violation being recorded counts towards the threshold.
	repeat := prior+1 >= d.config.RepeatThreshold
	fine := rule.FirstOffenseFine
	if repeat {
		fine = rule.RepeatOffenseFine
	}

	v := models.Violation{
		EntityID:      req.VehicleID,
		Domain:        models.DomainNumberCoding,
		ViolationType: "number_coding",
		FineAmount:    fine,
		ViolationDate: now.In(rule.Location()),
		Coding: &models.CodingDetails{
			VehicleID:    req.VehicleID,
			PlateNumber:  req.PlateNumber,
			LastDigit:    digit,
			Location:     req.Location,
			CodingRuleID: rule.ID,
			RegionID:     req.RegionID,
			DriverID:     req.DriverID,
		},
	}

	recorded, err := d.ledger.Record(ctx, v)
	alreadyRecorded := false
	if err != nil {
		if !errors.IsConflict(err) {
			return nil, err
		}
		existing, findErr := d.ledger.FindExisting(ctx, err)
		if findErr != nil {
			return nil, findErr
		}
		recorded = existing
		alreadyRecorded = true
		d.logger.Debug("coding violation already recorded today", map[string]interface{}{
			"violationId": existing.ID,
			"vehicleId":   req.VehicleID,
		})
	}

	return &ViolationDetails{
		ViolationID:     recorded.ID,
		CodingRuleID:    rule.ID,
		PlateNumber:     req.PlateNumber,
		LastDigit:       digit,
		BannedDigits:    banned,
		FineAmount:      recorded.FineAmount,
		RepeatOffense:   repeat && !alreadyRecorded,
		ViolationDate:   recorded.ViolationDate,
		DueDate:         recorded.DueDate,
		AlreadyRecorded: alreadyRecorded,
	}, nil
}

func (d *Detector) notify(ctx context.Context, req CheckRequest, details *ViolationDetails) error {
	if d.notifier == nil {
		return nil
	}
	recipients := []models.RecipientRole{models.RoleVehicleOwner}
	if req.DriverID != "" {
		recipients = append(recipients, models.RoleDriver)
	}
	res, err := d.notifier.Dispatch(ctx, models.Notification{
		EntityID:   req.VehicleID,
		Domain:     models.DomainNumberCoding,
		Type:       "coding_violation",
		Channels:   []models.Channel{models.ChannelSMS, models.ChannelInApp},
		Recipients: recipients,
		Priority:   "high",
		Data: map[string]interface{}{
			"violationId": details.ViolationID,
			"plateNumber": details.PlateNumber,
			"lastDigit":   details.LastDigit,
			"fineAmount":  details.FineAmount,
			"dueDate":     details.DueDate.Format("2006-01-02"),
		},
	})
	if err != nil {
		return err
	}
	if !res.Delivered() {
		for _, c := range res.Channels {
			if c.Status == models.ChannelFailed {
				return fmt.Errorf("%s: %s", c.Channel, c.Error)
			}
		}
	}
	return nil
}

// LastDigit returns the last digit of the plate, ignoring any trailing non-digit suffix.
func LastDigit(plate string) (int, bool) {
	for i := len(plate) - 1; i >= 0; i-- {
		c := plate[i]
		if c >= '0' && c <= '9' {
			return int(c - '0'), true
		}
	}
	return 0, false
}

func validateRequest(req CheckRequest) error {
	switch {
	case req.VehicleID == "":
		return errors.NewValidationError("vehicleId", "is required")
	case strings.TrimSpace(req.PlateNumber) == "":
		return errors.NewValidationError("plateNumber", "is required")
	case req.RegionID == "":
		return errors.NewValidationError("regionId", "is required")
	case req.Location.Lat < -90 || req.Location.Lat > 90 || req.Location.Lon < -180 || req.Location.Lon > 180:
		return errors.NewValidationError("location", "lat/lon out of range")
	}
	return nil
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(plate))
}

func containsDigit(digits []int, d int) bool {
	for _, x := range digits {
		if x == d {
			return true
		}
	}
	return false
}

func joinDigits(digits []int) string {
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " and ")
}
