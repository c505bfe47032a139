// Package report aggregates the fleet's active document alerts into weekly
// and monthly digests.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/db"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/expiry"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mailer"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/metrics"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
)

// VehicleEntry is one vehicle listed in a digest section.
type VehicleEntry struct {
	VehicleNumber string               `json:"vehicleNumber"`
	Department    models.Department    `json:"department"`
	Alerts        []models.ExpiryAlert `json:"alerts"`
}

// Section groups vehicles by alert tier. Count is the number of vehicles with
// at least one alert in the tier; Vehicles is only filled for expired.
type Section struct {
	Priority models.Priority `json:"priority"`
	Title    string          `json:"title"`
	Count    int             `json:"count"`
	Vehicles []VehicleEntry  `json:"vehicles,omitempty"`
}

// Summary is the aggregated digest content.
type Summary struct {
	Period        recipients.Period `json:"period"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	ExpiredCount  int               `json:"expiredCount"`
	ExpiringCount int               `json:"expiringCount"`
	TotalVehicles int               `json:"totalVehicles"`
	Sections      []Section         `json:"sections"`
}

// Section returns the section for p, or nil.
func (s *Summary) Section(p models.Priority) *Section {
	for i := range s.Sections {
		if s.Sections[i].Priority == p {
			return &s.Sections[i]
		}
	}
	return nil
}

// SendError describes one failed digest delivery.
type SendError struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// SummaryResult reports a digest build and delivery.
type SummaryResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Summary *Summary    `json:"summary,omitempty"`
	Sent    int         `json:"sent"`
	Errors  []SendError `json:"errors"`
}

var sectionTitles = map[models.Priority]string{
	models.PriorityExpired: "Expired documents",
	models.PriorityHigh:    "Due within 7 days",
	models.PriorityMedium:  "Due within 15 days",
	models.PriorityLow:     "Due within 30 days",
}

// Builder builds and sends digests.
type Builder struct {
	scanner     *expiry.Scanner
	store       db.VehicleStore
	resolver    *recipients.Resolver
	sender      mailer.Sender
	metrics     *metrics.Metrics
	concurrency int
	log         *logrus.Entry
}

// Option configures a Builder.
type Option func(*Builder)

// WithMetrics records digest runs and deliveries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithConcurrency bounds parallel digest sends.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(scanner *expiry.Scanner, store db.VehicleStore, resolver *recipients.Resolver, sender mailer.Sender, opts ...Option) *Builder {
	b := &Builder{
		scanner:     scanner,
		store:       store,
		resolver:    resolver,
		sender:      sender,
		concurrency: 4,
		log:         logger.WithComponent("report"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildSummary fetches every vehicle and aggregates its alerts.
func (b *Builder) BuildSummary(ctx context.Context, period recipients.Period) (Summary, error) {
	vehicles, err := b.store.FetchAllVehicles(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch vehicles: %w", err)
	}
	now := b.scanner.Now()
	return Aggregate(period, now, b.scanner.AlertsFor(vehicles, now)), nil
}

// Aggregate partitions vehicles with alerts into expired and expiring sets
// and counts them per tier.
func Aggregate(period recipients.Period, now time.Time, items []expiry.VehicleAlerts) Summary {
	s := Summary{Period: period, GeneratedAt: now}
	counts := make(map[models.Priority]int, len(models.Priorities))
	var expired []VehicleEntry

	for _, it := range items {
		tiers := make(map[models.Priority]bool)
		var expiredAlerts []models.ExpiryAlert
		for _, a := range it.Alerts {
			tiers[a.Priority] = true
			if a.Priority == models.PriorityExpired {
				expiredAlerts = append(expiredAlerts, a)
			}
		}
		for p := range tiers {
			counts[p]++
		}
		s.TotalVehicles++
		if len(expiredAlerts) > 0 {
			s.ExpiredCount++
			expired = append(expired, VehicleEntry{
				VehicleNumber: it.Vehicle.VehicleNumber,
				Department:    it.Vehicle.Department,
				Alerts:        expiredAlerts,
			})
		}
		if len(expiredAlerts) < len(it.Alerts) {
			s.ExpiringCount++
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].VehicleNumber < expired[j].VehicleNumber })
	for _, p := range models.Priorities {
		sec := Section{Priority: p, Title: sectionTitles[p], Count: counts[p]}
		if p == models.PriorityExpired {
			sec.Vehicles = expired
		}
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// TriggerSummary validates period and builds and sends the digest.
func (b *Builder) TriggerSummary(ctx context.Context, period string) SummaryResult {
	p, err := recipients.ParsePeriod(period)
	if err != nil {
		return SummaryResult{Success: false, Error: err.Error(), Errors: []SendError{}}
	}
	return b.BuildAndSendSummary(ctx, p)
}

// BuildAndSendSummary sends the digest for period to its recipients. A
// failing recipient does not stop delivery to the others.
func (b *Builder) BuildAndSendSummary(ctx context.Context, period recipients.Period) SummaryResult {
	start := time.Now()
	res := SummaryResult{Success: true, Errors: []SendError{}}
	log := b.log.WithField("period", period)
	defer func() {
		b.metrics.ObserveRun("summary_"+string(period), res.Success, time.Since(start))
	}()

	to, err := b.resolver.SummaryRecipients(period)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res
	}

	summary, err := b.BuildSummary(ctx, period)
	if err != nil {
		log.WithError(err).Error("Failed to build summary")
		res.Success = false
		res.Error = err.Error()
		return res
	}
	res.Summary = &summary

	content, err := Compose(summary)
	if err != nil {
		log.WithError(err).Error("Failed to render summary")
		res.Success = false
		res.Error = err.Error()
		return res
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(b.concurrency)
	for _, r := range to {
		g.Go(func() error {
			err := b.sender.Send(ctx, r, content.Subject, content.HTML, content.Text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("recipient", r).Warn("Failed to send summary")
				res.Errors = append(res.Errors, SendError{Recipient: r, Error: err.Error()})
				b.metrics.MessageFailed(metrics.KindSummary)
				return nil
			}
			res.Sent++
			b.metrics.MessageSent(metrics.KindSummary)
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Recipient < res.Errors[j].Recipient })

	log.WithFields(logrus.Fields{
		"expired":  summary.ExpiredCount,
		"expiring": summary.ExpiringCount,
		"sent":     res.Sent,
		"errors":   len(res.Errors),
	}).Info("Summary report sent")
	return res
}
