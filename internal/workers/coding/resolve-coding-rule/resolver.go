// internal/workers/coding/resolve-coding-rule/resolver.go
package resolvecodingrule

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
)

// Resolver picks the number-coding rule that governs a location.
type Resolver struct {
	store  repository.CodingRuleStore
	logger logger.Logger
}

func NewResolver(store repository.CodingRuleStore, log logger.Logger) *Resolver {
	return &Resolver{store: store, logger: log}
}

// Resolve returns the rule of regionID covering loc, or nil when none does.
// A point inside one of a rule's exempted areas is not covered by that rule.
// Overlapping rules resolve to the smallest coverage area, then the smallest id.
func (r *Resolver) Resolve(ctx context.Context, regionID string, loc models.GeoPoint) (*models.CodingRule, error) {
	rules, err := r.store.ListByRegion(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("list coding rules for %s: %w", regionID, err)
	}

	var candidates []models.CodingRule
	for _, rule := range rules {
		if covers(rule, loc) {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		ai, aj := candidates[i].CoverageArea.Area(), candidates[j].CoverageArea.Area()
		if ai != aj {
			return ai < aj
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > 1 {
		r.logger.Debug("overlapping coding rules", map[string]interface{}{
			"regionId": regionID,
			"selected": candidates[0].ID,
			"matches":  len(candidates),
		})
	}
	return &candidates[0], nil
}

// ResolveActive is Resolve restricted to a rule that is in effect at now.
func (r *Resolver) ResolveActive(ctx context.Context, regionID string, loc models.GeoPoint, now time.Time) (*models.CodingRule, error) {
	rule, err := r.Resolve(ctx, regionID, loc)
	if err != nil || rule == nil {
		return nil, err
	}
	if !InEffect(*rule, now) {
		return nil, nil
	}
	return rule, nil
}

// Save validates and stores a rule.
func (r *Resolver) Save(ctx context.Context, rule models.CodingRule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	return r.store.Save(ctx, rule)
}

func covers(rule models.CodingRule, loc models.GeoPoint) bool {
	if !rule.CoverageArea.Contains(loc) {
		return false
	}
	for _, ex := range rule.ExemptedAreas {
		if ex.Contains(loc) {
			return false
		}
	}
	return true
}

// InEffect reports whether coding applies at now in the rule's timezone: a coding day,
// inside the inclusive coding hours and not a holiday exemption. The end bound is the
// exact instant HH:MM:00, so 19:00:01 is outside a window ending at "19:00".
func InEffect(rule models.CodingRule, now time.Time) bool {
	local := now.In(rule.Location())
	if !isCodingDay(rule, local.Weekday()) {
		return false
	}
	start, end, err := rule.CodingHours.Minutes()
	if err != nil {
		return false
	}
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if sinceMidnight < time.Duration(start)*time.Minute || sinceMidnight > time.Duration(end)*time.Minute {
		return false
	}
	return !IsHoliday(rule, now)
}

// IsHoliday reports whether the local date of now is one of the rule's holiday exemptions.
func IsHoliday(rule models.CodingRule, now time.Time) bool {
	day := now.In(rule.Location()).Format("2006-01-02")
	for _, h := range rule.HolidayExemptions {
		if h == day {
			return true
		}
	}
	return false
}

// StartsWithin reports whether a coding window opens later on now's local day
// within d of now.
func StartsWithin(rule models.CodingRule, now time.Time, d time.Duration) bool {
	local := now.In(rule.Location())
	if !isCodingDay(rule, local.Weekday()) || IsHoliday(rule, now) {
		return false
	}
	start, _, err := rule.CodingHours.Minutes()
	if err != nil {
		return false
	}
	opens := time.Date(local.Year(), local.Month(), local.Day(), start/60, start%60, 0, 0, local.Location())
	return opens.After(local) && !opens.After(local.Add(d))
}

func isCodingDay(rule models.CodingRule, day time.Weekday) bool {
	for _, d := range rule.CodingDays {
		if d == day {
			return true
		}
	}
	return false
}

// BannedDigitsFor returns the plate endings banned on date's weekday in the rule's timezone.
// It depends only on the rule's schedule and the date.
func BannedDigitsFor(rule models.CodingRule, date time.Time) []int {
	schedule := rule.DigitSchedule
	if len(schedule) == 0 {
		schedule = models.DefaultDigitSchedule()
	}
	digits := append([]int(nil), schedule[date.In(rule.Location()).Weekday()]...)
	sort.Ints(digits)
	return digits
}

// Validate checks a coding rule before it is stored.
func Validate(rule models.CodingRule) error {
	if rule.ID == "" {
		return errors.NewValidationError("id", "is required")
	}
	if rule.RegionID == "" {
		return errors.NewValidationError("regionId", "is required")
	}
	if _, _, err := rule.CodingHours.Minutes(); err != nil {
		return errors.NewValidationError("codingHours", err.Error())
	}
	if len(rule.CoverageArea) < 3 {
		return errors.NewValidationError("coverageArea", "needs at least three vertices")
	}
	for day, digits := range rule.DigitSchedule {
		for _, d := range digits {
			if d < 0 || d > 9 {
				return errors.NewValidationError("digitSchedule", fmt.Sprintf("%s: digit %d out of range", day, d))
			}
		}
	}
	for _, h := range rule.HolidayExemptions {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return errors.NewValidationError("holidayExemptions", fmt.Sprintf("invalid date %q", h))
		}
	}
	for _, p := range rule.ExemptPlatePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errors.NewValidationError("exemptPlatePatterns", err.Error())
		}
	}
	if rule.FirstOffenseFine < 0 || rule.RepeatOffenseFine < rule.FirstOffenseFine {
		return errors.NewValidationError("fines", "repeat offense fine must be >= first offense fine >= 0")
	}
	return nil
}
