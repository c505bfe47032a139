// Package notification drives expiry scans and delivers alert messages to the
// resolved recipients of each vehicle.
package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/db"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/expiry"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mailer"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/metrics"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mqtt"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
)

const (
	// MaxCheckDays bounds the lookahead accepted by TriggerManualCheck.
	MaxCheckDays = 365

	jobExpiryCheck = "expiry_check"
)

// ErrInvalidDays is reported when a manual check asks for a lookahead outside 1..MaxCheckDays.
var ErrInvalidDays = errors.New("days must be between 1 and 365")

// SendError describes one failed delivery.
type SendError struct {
	VehicleNumber string `json:"vehicleNumber"`
	Recipient     string `json:"recipient"`
	Error         string `json:"error"`
}

// CheckResult summarises one expiry check run.
type CheckResult struct {
	Success           bool        `json:"success"`
	Error             string      `json:"error,omitempty"`
	RunID             string      `json:"runId"`
	VehiclesProcessed int         `json:"vehiclesProcessed"`
	VehiclesSkipped   int         `json:"vehiclesSkipped"`
	NotificationsSent int         `json:"notificationsSent"`
	Aborted           bool        `json:"aborted,omitempty"`
	Errors            []SendError `json:"errors"`
}

// Dispatcher sends expiry alerts and records what was sent.
type Dispatcher struct {
	scanner     *expiry.Scanner
	resolver    *recipients.Resolver
	store       db.VehicleStore
	sender      mailer.Sender
	publisher   mqtt.Publisher
	metrics     *metrics.Metrics
	window      time.Duration
	concurrency int
	log         *logrus.Entry
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher also publishes an event per dispatched vehicle.
func WithPublisher(p mqtt.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithMetrics records run and delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDedupWindow replaces calendar-day suppression with a rolling window.
// It must be shorter than the gap between scheduled runs, or a run suppresses
// the next one. Non-positive values keep calendar-day suppression.
func WithDedupWindow(w time.Duration) Option {
	return func(d *Dispatcher) {
		if w > 0 {
			d.window = w
		}
	}
}

// WithConcurrency bounds parallel sends per vehicle.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(scanner *expiry.Scanner, resolver *recipients.Resolver, store db.VehicleStore, sender mailer.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		scanner:     scanner,
		resolver:    resolver,
		store:       store,
		sender:      sender,
		concurrency: 4,
		log:         logger.WithComponent("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TriggerManualCheck validates days and runs an expiry check.
func (d *Dispatcher) TriggerManualCheck(ctx context.Context, days int) CheckResult {
	if days < 1 || days > MaxCheckDays {
		return CheckResult{Success: false, Error: ErrInvalidDays.Error(), Errors: []SendError{}}
	}
	return d.RunExpiryCheck(ctx, days)
}

// RunExpiryCheck scans for vehicles with documents due within days (or
// already expired) and alerts their recipients. Delivery failures are
// collected in the result; only a failing vehicle query makes it unsuccessful.
func (d *Dispatcher) RunExpiryCheck(ctx context.Context, days int) CheckResult {
	start := time.Now()
	res := CheckResult{Success: true, RunID: uuid.NewString(), Errors: []SendError{}}
	log := d.log.WithFields(logrus.Fields{"run_id": res.RunID, "days": days})
	defer func() {
		d.metrics.ObserveRun(jobExpiryCheck, res.Success, time.Since(start))
	}()

	vehicles, err := d.scanner.FindVehiclesDue(ctx, days)
	if err != nil {
		log.WithError(err).Error("Expiry check failed to load vehicles")
		res.Success = false
		res.Error = err.Error()
		return res
	}
	if len(vehicles) == 0 {
		log.Info("No vehicles with expiring documents")
		return res
	}

	now := d.scanner.Now()
	for i := range vehicles {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Expiry check aborted")
			res.Aborted = true
			break
		}
		d.dispatchVehicle(ctx, &vehicles[i], now, &res, log)
	}

	log.WithFields(logrus.Fields{
		"vehicles_processed": res.VehiclesProcessed,
		"vehicles_skipped":   res.VehiclesSkipped,
		"notifications_sent": res.NotificationsSent,
		"errors":             len(res.Errors),
	}).Info("Expiry check completed")
	return res
}

func (d *Dispatcher) dispatchVehicle(ctx context.Context, v *models.Vehicle, now time.Time, res *CheckResult, log *logrus.Entry) {
	alerts := d.scanner.ComputeAlerts(v, now)
	if len(alerts) == 0 {
		return
	}
	log = log.WithField("vehicle", v.VehicleNumber)

	pending := d.pendingAlerts(v, alerts, now)
	if len(pending) == 0 {
		log.Debug("Alerts already sent for this period")
		res.VehiclesSkipped++
		d.metrics.VehicleSkipped()
		return
	}
	res.VehiclesProcessed++

	to := d.resolver.ResolveRecipients(v, pending)
	content, err := mailer.ComposeExpiryAlert(v, pending)
	if err != nil {
		log.WithError(err).Error("Failed to render alert message")
		for _, r := range to {
			res.Errors = append(res.Errors, SendError{VehicleNumber: v.VehicleNumber, Recipient: r, Error: err.Error()})
		}
		return
	}

	delivered, failures := d.sendAll(ctx, v, to, content)
	res.NotificationsSent += delivered
	res.Errors = append(res.Errors, failures...)
	for _, f := range failures {
		log.WithField("recipient", f.Recipient).Warnf("Failed to send alert: %s", f.Error)
	}

	if delivered > 0 {
		d.track(ctx, v, pending, now, log)
	}
	d.publish(ctx, v, pending, res.RunID, len(to), delivered, now, log)
}

// dedupSince returns the earliest send time that still suppresses an alert:
// the start of today in the scanner's location, or now minus the rolling
// window when one is configured.
func (d *Dispatcher) dedupSince(now time.Time) time.Time {
	if d.window > 0 {
		return now.Add(-d.window)
	}
	y, m, dd := now.In(d.scanner.Location()).Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, d.scanner.Location())
}

// pendingAlerts drops alerts whose category already has a sent record at or
// after dedupSince.
func (d *Dispatcher) pendingAlerts(v *models.Vehicle, alerts []models.ExpiryAlert, now time.Time) []models.ExpiryAlert {
	since := d.dedupSince(now)
	var out []models.ExpiryAlert
	for _, a := range alerts {
		if c, ok := a.Field.Category(); ok && v.Notifications.SentSince(c, since) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (d *Dispatcher) sendAll(ctx context.Context, v *models.Vehicle, to []string, content mailer.Content) (int, []SendError) {
	var (
		mu        sync.Mutex
		delivered int
		failures  []SendError
		g         errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for _, r := range to {
		g.Go(func() error {
			err := d.sender.Send(ctx, r, content.Subject, content.HTML, content.Text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, SendError{VehicleNumber: v.VehicleNumber, Recipient: r, Error: err.Error()})
				d.metrics.MessageFailed(metrics.KindAlert)
				return nil
			}
			delivered++
			d.metrics.MessageSent(metrics.KindAlert)
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failures, func(i, j int) bool { return failures[i].Recipient < failures[j].Recipient })
	return delivered, failures
}

// track writes one record per category, taken from its most urgent alert.
// Write failures are logged only; they can at worst cause a repeat alert.
func (d *Dispatcher) track(ctx context.Context, v *models.Vehicle, alerts []models.ExpiryAlert, now time.Time, log *logrus.Entry) {
	best := make(map[models.Category]models.ExpiryAlert)
	var order []models.Category
	for _, a := range alerts {
		c, ok := a.Field.Category()
		if !ok {
			continue
		}
		cur, seen := best[c]
		if !seen {
			order = append(order, c)
		}
		if !seen || a.DaysRemaining < cur.DaysRemaining {
			best[c] = a
		}
	}

	since := d.dedupSince(now)
	for _, c := range order {
		a := best[c]
		rec := models.NotificationRecord{
			Field:           a.Field,
			AlertDate:       now,
			DaysUntilExpiry: a.DaysRemaining,
			Sent:            true,
			SentAt:          now,
			Method:          mailer.MethodEmail,
		}
		appended, err := d.store.AppendNotificationRecord(ctx, v.ID, c, rec, since)
		switch {
		case errors.Is(err, db.ErrVehicleNotFound):
			log.WithField("category", c).Warn("Vehicle removed before its notification was recorded")
			d.metrics.TrackingWrite(string(c), "missing")
			return
		case err != nil:
			log.WithError(err).WithField("category", c).Error("Failed to record notification")
			d.metrics.TrackingWrite(string(c), "error")
		case !appended:
			log.WithField("category", c).Debug("Tracking record already present for this period")
			d.metrics.TrackingWrite(string(c), "deduplicated")
		default:
			d.metrics.TrackingWrite(string(c), "appended")
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, v *models.Vehicle, alerts []models.ExpiryAlert, runID string, recipients, delivered int, now time.Time, log *logrus.Entry) {
	if d.publisher == nil {
		return
	}
	ev := mqtt.AlertEvent{
		RunID:         runID,
		VehicleID:     v.ID.Hex(),
		VehicleNumber: v.VehicleNumber,
		Department:    v.Department,
		Alerts:        alerts,
		Recipients:    recipients,
		Delivered:     delivered,
		GeneratedAt:   now,
	}
	if err := d.publisher.PublishAlert(ctx, ev); err != nil {
		log.WithError(err).Warn("Failed to publish alert event")
	}
}
