// internal/errors/errors.go
package appErrors

import "fmt"

// ValidationError covers bad input shape or values. Never retried.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
    return &ValidationError{Field: field, Reason: reason}
}

// PlanRestrictionError covers features gated by tier.
type PlanRestrictionError struct {
    PlanID string
    Reason string
}

func (e *PlanRestrictionError) Error() string {
    return fmt.Sprintf("plan %q: %s (upgrade to unlock)", e.PlanID, e.Reason)
}

func NewPlanRestriction(planID, reason string) error {
    return &PlanRestrictionError{PlanID: planID, Reason: reason}
}

type QuotaLimit string

const (
    LimitPerCampaign QuotaLimit = "per_campaign"
    LimitMonthly     QuotaLimit = "monthly"
    LimitAnnual      QuotaLimit = "annual"
)

// QuotaExceededError carries which limit was hit, the current usage and
// the plan's limit value so callers can surface a specific message.
type QuotaExceededError struct {
    Limit     QuotaLimit
    PlanID    string
    Current   int
    Requested int
    Max       int
}

func (e *QuotaExceededError) Error() string {
    switch e.Limit {
    case LimitPerCampaign:
        return fmt.Sprintf("quota exceeded: %d recipients is over the per-campaign limit of %d on plan %q", e.Requested, e.Max, e.PlanID)
    case LimitMonthly:
        return fmt.Sprintf("quota exceeded: %d sent this month + %d requested is over the monthly limit of %d on plan %q", e.Current, e.Requested, e.Max, e.PlanID)
    default:
        return fmt.Sprintf("quota exceeded: %d sent this year + %d requested is over the annual limit of %d on plan %q", e.Current, e.Requested, e.Max, e.PlanID)
    }
}

func NewQuotaExceeded(limit QuotaLimit, planID string, current, requested, max int) error {
    return &QuotaExceededError{Limit: limit, PlanID: planID, Current: current, Requested: requested, Max: max}
}

// NotFoundError is returned for operations on an unknown campaign id.
type NotFoundError struct {
    CampaignID string
}

func (e *NotFoundError) Error() string {
    return fmt.Sprintf("campaign %q not found", e.CampaignID)
}

func NewCampaignNotFound(id string) error {
    return &NotFoundError{CampaignID: id}
}
