package models

import "time"

// TrackedField names a vehicle date attribute monitored for expiry.
// Values match the bson keys of Vehicle.
type TrackedField string

const (
	FieldInsuranceExpiry    TrackedField = "insuranceExpiry"
	FieldEmissionExpiry     TrackedField = "emissionExpiry"
	FieldRevenueExpiry      TrackedField = "revenueExpiry"
	FieldRegistrationExpiry TrackedField = "registrationExpiry"
	FieldLeaseDue           TrackedField = "leaseDue"
	FieldNextServiceDue     TrackedField = "nextServiceDue"
)

// TrackedFields is the tracked-document set in scan order.
var TrackedFields = []TrackedField{
	FieldInsuranceExpiry,
	FieldEmissionExpiry,
	FieldRevenueExpiry,
	FieldRegistrationExpiry,
	FieldLeaseDue,
	FieldNextServiceDue,
}

// Document returns the human readable document name for a field.
func (f TrackedField) Document() string {
	switch f {
	case FieldInsuranceExpiry:
		return "Insurance"
	case FieldEmissionExpiry:
		return "Emission Test"
	case FieldRevenueExpiry:
		return "Revenue License"
	case FieldRegistrationExpiry:
		return "Registration"
	case FieldLeaseDue:
		return "Lease Payment"
	case FieldNextServiceDue:
		return "Service"
	default:
		return string(f)
	}
}

// Category groups tracked fields into notification audit lists.
type Category string

const (
	CategoryInsurance Category = "insuranceAlerts"
	CategoryEmission  Category = "emissionAlerts"
	CategoryRevenue   Category = "revenueAlerts"
	CategoryService   Category = "serviceAlerts"
)

// Category maps a field to its audit list. Registration is grouped with
// revenue and lease with service.
func (f TrackedField) Category() (Category, bool) {
	switch f {
	case FieldInsuranceExpiry:
		return CategoryInsurance, true
	case FieldEmissionExpiry:
		return CategoryEmission, true
	case FieldRevenueExpiry, FieldRegistrationExpiry:
		return CategoryRevenue, true
	case FieldNextServiceDue, FieldLeaseDue:
		return CategoryService, true
	default:
		return "", false
	}
}

// Priority is the urgency of an expiry alert.
type Priority string

const (
	PriorityExpired Priority = "expired"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
)

// Priorities lists the tiers from most to least urgent.
var Priorities = []Priority{PriorityExpired, PriorityHigh, PriorityMedium, PriorityLow}

// AlertHorizonDays is the largest daysRemaining that still produces an alert.
const AlertHorizonDays = 30

// PriorityFor classifies days remaining until expiry. ok is false when the
// document is too far out to alert on.
func PriorityFor(daysRemaining int) (Priority, bool) {
	switch {
	case daysRemaining < 0:
		return PriorityExpired, true
	case daysRemaining <= 7:
		return PriorityHigh, true
	case daysRemaining <= 15:
		return PriorityMedium, true
	case daysRemaining <= AlertHorizonDays:
		return PriorityLow, true
	default:
		return "", false
	}
}

// Escalates reports whether the priority pulls in the escalation tier.
func (p Priority) Escalates() bool {
	return p == PriorityExpired || p == PriorityHigh
}

// ExpiryAlert is a derived, non-persisted view of one tracked field's urgency.
type ExpiryAlert struct {
	Document      string       `json:"document"`
	Field         TrackedField `json:"field"`
	ExpiryDate    time.Time    `json:"expiryDate"`
	DaysRemaining int          `json:"daysRemaining"`
	Priority      Priority     `json:"priority"`
}

// HasEscalation reports whether any alert is expired or high priority.
func HasEscalation(alerts []ExpiryAlert) bool {
	for _, a := range alerts {
		if a.Priority.Escalates() {
			return true
		}
	}
	return false
}
