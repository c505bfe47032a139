package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Department is the organisational unit a vehicle is assigned to.
type Department string

const (
	DepartmentOperations     Department = "Operations"
	DepartmentLogistics      Department = "Logistics"
	DepartmentMaintenance    Department = "Maintenance"
	DepartmentAdministration Department = "Administration"
	DepartmentSales          Department = "Sales"
	DepartmentEngineering    Department = "Engineering"
)

// Departments lists every known department.
var Departments = []Department{
	DepartmentOperations,
	DepartmentLogistics,
	DepartmentMaintenance,
	DepartmentAdministration,
	DepartmentSales,
	DepartmentEngineering,
}

// IsValidDepartment checks if a department is known
func IsValidDepartment(d Department) bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

var (
	ErrMissingVehicleNumber = errors.New("vehicle number is required")
	ErrInvalidDepartment    = errors.New("invalid department")
	ErrMissingInsurance     = errors.New("insurance expiry is required")
	ErrMissingRevenue       = errors.New("revenue license expiry is required")
)

// Vehicle represents a fleet vehicle and the compliance documents tracked for it.
type Vehicle struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleNumber string             `bson:"vehicleNumber" json:"vehicleNumber"`
	Department    Department         `bson:"department" json:"department"`
	Make          string             `bson:"make" json:"make"`
	Model         string             `bson:"model" json:"model"`
	Year          int                `bson:"year" json:"year"`
	Status        string             `bson:"status" json:"status"` // "active", "inactive", "maintenance"

	InsuranceExpiry    *time.Time `bson:"insuranceExpiry,omitempty" json:"insuranceExpiry,omitempty"`
	EmissionExpiry     *time.Time `bson:"emissionExpiry,omitempty" json:"emissionExpiry,omitempty"`
	RevenueExpiry      *time.Time `bson:"revenueExpiry,omitempty" json:"revenueExpiry,omitempty"`
	RegistrationExpiry *time.Time `bson:"registrationExpiry,omitempty" json:"registrationExpiry,omitempty"`
	LeaseDue           *time.Time `bson:"leaseDue,omitempty" json:"leaseDue,omitempty"`
	NextServiceDue     *time.Time `bson:"nextServiceDue,omitempty" json:"nextServiceDue,omitempty"`

	Notifications Notifications `bson:"notifications" json:"notifications"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Notifications holds the tracking records written after alerts are sent.
type Notifications struct {
	InsuranceAlerts []NotificationRecord `bson:"insuranceAlerts,omitempty" json:"insuranceAlerts,omitempty"`
	EmissionAlerts  []NotificationRecord `bson:"emissionAlerts,omitempty" json:"emissionAlerts,omitempty"`
	RevenueAlerts   []NotificationRecord `bson:"revenueAlerts,omitempty" json:"revenueAlerts,omitempty"`
	ServiceAlerts   []NotificationRecord `bson:"serviceAlerts,omitempty" json:"serviceAlerts,omitempty"`
}

// Records returns the tracking records stored for a category.
func (n Notifications) Records(c Category) []NotificationRecord {
	switch c {
	case CategoryInsurance:
		return n.InsuranceAlerts
	case CategoryEmission:
		return n.EmissionAlerts
	case CategoryRevenue:
		return n.RevenueAlerts
	case CategoryService:
		return n.ServiceAlerts
	default:
		return nil
	}
}

// Append adds a record to the list of its category.
func (n *Notifications) Append(c Category, rec NotificationRecord) {
	switch c {
	case CategoryInsurance:
		n.InsuranceAlerts = append(n.InsuranceAlerts, rec)
	case CategoryEmission:
		n.EmissionAlerts = append(n.EmissionAlerts, rec)
	case CategoryRevenue:
		n.RevenueAlerts = append(n.RevenueAlerts, rec)
	case CategoryService:
		n.ServiceAlerts = append(n.ServiceAlerts, rec)
	}
}

// SentSince reports whether a sent record exists for the category at or after since.
func (n Notifications) SentSince(c Category, since time.Time) bool {
	for _, rec := range n.Records(c) {
		if rec.Sent && !rec.SentAt.Before(since) {
			return true
		}
	}
	return false
}

// NotificationRecord is one entry of the alert audit trail.
type NotificationRecord struct {
	Field           TrackedField `bson:"field" json:"field"`
	AlertDate       time.Time    `bson:"alertDate" json:"alertDate"`
	DaysUntilExpiry int          `bson:"daysUntilExpiry" json:"daysUntilExpiry"`
	Sent            bool         `bson:"sent" json:"sent"`
	SentAt          time.Time    `bson:"sentAt" json:"sentAt"`
	Method          string       `bson:"method" json:"method"` // "email"
}

// FieldDate returns the date stored in a tracked field, or nil when unset.
func (v *Vehicle) FieldDate(f TrackedField) *time.Time {
	switch f {
	case FieldInsuranceExpiry:
		return v.InsuranceExpiry
	case FieldEmissionExpiry:
		return v.EmissionExpiry
	case FieldRevenueExpiry:
		return v.RevenueExpiry
	case FieldRegistrationExpiry:
		return v.RegistrationExpiry
	case FieldLeaseDue:
		return v.LeaseDue
	case FieldNextServiceDue:
		return v.NextServiceDue
	default:
		return nil
	}
}

// Normalize upper-cases the vehicle number.
func (v *Vehicle) Normalize() {
	v.VehicleNumber = strings.ToUpper(strings.TrimSpace(v.VehicleNumber))
}

// Validate checks the fields the alerting subsystem relies on.
func (v *Vehicle) Validate() error {
	if strings.TrimSpace(v.VehicleNumber) == "" {
		return ErrMissingVehicleNumber
	}
	if !IsValidDepartment(v.Department) {
		return ErrInvalidDepartment
	}
	if v.InsuranceExpiry == nil {
		return ErrMissingInsurance
	}
	if v.RevenueExpiry == nil {
		return ErrMissingRevenue
	}
	return nil
}
