// Package expiry finds vehicles whose tracked compliance documents are
// expiring or expired and classifies each document's urgency.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/db"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleAlerts pairs a vehicle with the alerts computed for it in one scan.
type VehicleAlerts struct {
	Vehicle models.Vehicle
	Alerts  []models.ExpiryAlert
}

// Scanner queries the vehicle store and classifies document expiry.
type Scanner struct {
	store db.VehicleStore
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// NewScanner creates a scanner that counts calendar days in loc.
func NewScanner(store db.VehicleStore, loc *time.Location, opts ...Option) *Scanner {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scanner{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scanner's current time in its location.
func (s *Scanner) Now() time.Time {
	return s.now().In(s.loc)
}

// Location returns the timezone used for calendar-day arithmetic.
func (s *Scanner) Location() *time.Location {
	return s.loc
}

// ComputeAlerts classifies every tracked field of v relative to now.
func (s *Scanner) ComputeAlerts(v *models.Vehicle, now time.Time) []models.ExpiryAlert {
	return ComputeAlerts(v, now, s.loc)
}

// ComputeAlerts returns at most one alert per tracked field, in tracked-field
// order. Unset fields and fields more than AlertHorizonDays out are skipped.
func ComputeAlerts(v *models.Vehicle, now time.Time, loc *time.Location) []models.ExpiryAlert {
	var alerts []models.ExpiryAlert
	for _, f := range models.TrackedFields {
		d := v.FieldDate(f)
		if d == nil || d.IsZero() {
			continue
		}
		days := DaysUntil(*d, now, loc)
		priority, ok := models.PriorityFor(days)
		if !ok {
			continue
		}
		alerts = append(alerts, models.ExpiryAlert{
			Document:      f.Document(),
			Field:         f,
			ExpiryDate:    *d,
			DaysRemaining: days,
			Priority:      priority,
		})
	}
	return alerts
}

// DaysUntil counts calendar days from now to expiry in loc. Anything expiring
// on today's date yields 0 and time of day is ignored, so a document due
// tomorrow evening counts 1. Negative values are past due.
func DaysUntil(expiry, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	e := expiry.In(loc)
	n := now.In(loc)
	// Compare dates at UTC midnight so DST shifts cannot skew the count.
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(ed.Sub(nd).Hours() / 24)
}

// FindVehiclesWithUpcomingAlerts returns vehicles with a tracked field due
// between today and days from now that produce at least one alert.
func (s *Scanner) FindVehiclesWithUpcomingAlerts(ctx context.Context, days int) ([]models.Vehicle, error) {
	now := s.Now()
	from := startOfDay(now)
	to := startOfDay(now).AddDate(0, 0, days+1).Add(-time.Nanosecond)
	vehicles, err := s.store.QueryVehiclesWithAnyFieldInRange(ctx, models.TrackedFields, from, to)
	if err != nil {
		return nil, fmt.Errorf("query upcoming expiries: %w", err)
	}
	return s.withAlerts(vehicles, now), nil
}

// FindExpiredVehicles returns vehicles with a tracked field before now that
// produce at least one alert.
func (s *Scanner) FindExpiredVehicles(ctx context.Context) ([]models.Vehicle, error) {
	now := s.Now()
	vehicles, err := s.store.QueryVehiclesWithAnyFieldBefore(ctx, models.TrackedFields, now)
	if err != nil {
		return nil, fmt.Errorf("query expired documents: %w", err)
	}
	return s.withAlerts(vehicles, now), nil
}

// FindVehiclesDue merges the upcoming and expired pre-filters, keeping each
// vehicle once in query order.
func (s *Scanner) FindVehiclesDue(ctx context.Context, days int) ([]models.Vehicle, error) {
	upcoming, err := s.FindVehiclesWithUpcomingAlerts(ctx, days)
	if err != nil {
		return nil, err
	}
	expired, err := s.FindExpiredVehicles(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]struct{}, len(upcoming)+len(expired))
	out := make([]models.Vehicle, 0, len(upcoming)+len(expired))
	for _, list := range [][]models.Vehicle{upcoming, expired} {
		for _, v := range list {
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

// AlertsFor computes alerts for each vehicle and drops vehicles without any.
func (s *Scanner) AlertsFor(vehicles []models.Vehicle, now time.Time) []VehicleAlerts {
	var out []VehicleAlerts
	for i := range vehicles {
		if alerts := s.ComputeAlerts(&vehicles[i], now); len(alerts) > 0 {
			out = append(out, VehicleAlerts{Vehicle: vehicles[i], Alerts: alerts})
		}
	}
	return out
}

func (s *Scanner) withAlerts(vehicles []models.Vehicle, now time.Time) []models.Vehicle {
	var out []models.Vehicle
	for i := range vehicles {
		if len(s.ComputeAlerts(&vehicles[i], now)) > 0 {
			out = append(out, vehicles[i])
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
