package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/db"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/expiry"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mailer"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
)

var testNow = time.Date(2026, 3, 13, 17, 0, 0, 0, time.UTC)

func day(n int) *time.Time {
	d := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return &d
}

func fleet() []models.Vehicle {
	return []models.Vehicle{
		{VehicleNumber: "DT-001", Department: models.DepartmentOperations, InsuranceExpiry: day(5), RevenueExpiry: day(200)},
		{VehicleNumber: "DT-002", Department: models.DepartmentOperations, InsuranceExpiry: day(-6), EmissionExpiry: day(12)},
		{VehicleNumber: "DT-003", Department: models.DepartmentLogistics, RevenueExpiry: day(20)},
		{VehicleNumber: "DT-004", Department: models.DepartmentSales, InsuranceExpiry: day(90)},
		{VehicleNumber: "DT-005", Department: models.DepartmentSales, LeaseDue: day(-1)},
	}
}

func newBuilder(store *db.MemoryVehicleStore, sender mailer.Sender) *Builder {
	scanner := expiry.NewScanner(store, time.UTC, expiry.WithClock(func() time.Time { return testNow }))
	resolver := recipients.NewResolver(recipients.Config{
		Defaults:   []string{"fleet@deeptec.com", "admin@deeptec.com"},
		Escalation: []string{"manager@deeptec.com"},
		Departments: map[string][]string{
			"Operations": {"operations@deeptec.com"},
			"Logistics":  {"logistics@deeptec.com"},
			"Sales":      {"sales@deeptec.com", "FLEET@deeptec.com"},
		},
	})
	return NewBuilder(scanner, store, resolver, sender, WithConcurrency(2))
}

func TestBuildSummary(t *testing.T) {
	b := newBuilder(db.NewMemoryVehicleStore(fleet()...), mailer.NewMockSender())

	s, err := b.BuildSummary(context.Background(), recipients.PeriodWeekly)
	require.NoError(t, err)

	assert.Equal(t, 4, s.TotalVehicles)
	assert.Equal(t, 2, s.ExpiredCount)
	assert.Equal(t, 3, s.ExpiringCount)
	require.Len(t, s.Sections, 4)

	expired := s.Section(models.PriorityExpired)
	require.NotNil(t, expired)
	assert.Equal(t, 2, expired.Count)
	require.Len(t, expired.Vehicles, 2)
	assert.Equal(t, "DT-002", expired.Vehicles[0].VehicleNumber)
	require.Len(t, expired.Vehicles[0].Alerts, 1)
	assert.Equal(t, "Insurance", expired.Vehicles[0].Alerts[0].Document)
	assert.Equal(t, "DT-005", expired.Vehicles[1].VehicleNumber)

	tests := []struct {
		priority models.Priority
		count    int
	}{
		{models.PriorityHigh, 1},
		{models.PriorityMedium, 1},
		{models.PriorityLow, 1},
	}
	for _, tt := range tests {
		sec := s.Section(tt.priority)
		require.NotNil(t, sec, tt.priority)
		assert.Equal(t, tt.count, sec.Count, tt.priority)
		assert.Empty(t, sec.Vehicles, tt.priority)
	}
}

func TestBuildSummary_FetchError(t *testing.T) {
	store := db.NewMemoryVehicleStore()
	store.QueryErr = errors.New("timeout")
	b := newBuilder(store, mailer.NewMockSender())

	_, err := b.BuildSummary(context.Background(), recipients.PeriodMonthly)
	assert.ErrorContains(t, err, "timeout")
}

func TestBuildAndSendSummary_Weekly(t *testing.T) {
	sender := mailer.NewMockSender()
	b := newBuilder(db.NewMemoryVehicleStore(fleet()...), sender)

	res := b.BuildAndSendSummary(context.Background(), recipients.PeriodWeekly)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Sent)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Summary)

	sent := sender.Sent()
	var to []string
	for _, m := range sent {
		to = append(to, m.To)
	}
	assert.ElementsMatch(t, []string{"admin@deeptec.com", "fleet@deeptec.com", "manager@deeptec.com"}, to)
	assert.Equal(t, "Fleet weekly report: 2 expired, 3 expiring", sent[0].Subject)
	assert.Contains(t, sent[0].BodyText, "DT-002 (Operations): Insurance expired 2026-03-07, 6 day(s) ago")
	assert.Contains(t, sent[0].BodyHTML, "<td>DT-005</td>")
}

func TestBuildAndSendSummary_MonthlyGoesToAllDepartments(t *testing.T) {
	sender := mailer.NewMockSender()
	b := newBuilder(db.NewMemoryVehicleStore(fleet()...), sender)

	res := b.BuildAndSendSummary(context.Background(), recipients.PeriodMonthly)
	require.True(t, res.Success)
	// fleet@ appears twice in config but is sent once.
	assert.Equal(t, 5, res.Sent)
}

func TestBuildAndSendSummary_ContinueOnError(t *testing.T) {
	sender := mailer.NewMockSender()
	sender.FailFor["admin@deeptec.com"] = errors.New("rejected")
	b := newBuilder(db.NewMemoryVehicleStore(fleet()...), sender)

	res := b.BuildAndSendSummary(context.Background(), recipients.PeriodWeekly)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Sent)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "admin@deeptec.com", res.Errors[0].Recipient)
}

func TestBuildAndSendSummary_FetchFailure(t *testing.T) {
	store := db.NewMemoryVehicleStore(fleet()...)
	store.QueryErr = errors.New("no primary")
	sender := mailer.NewMockSender()
	b := newBuilder(store, sender)

	res := b.BuildAndSendSummary(context.Background(), recipients.PeriodWeekly)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no primary")
	assert.Empty(t, sender.Sent())
}

func TestTriggerSummary(t *testing.T) {
	tests := []struct {
		period  string
		success bool
	}{
		{"weekly", true},
		{"Monthly", true},
		{"daily", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			b := newBuilder(db.NewMemoryVehicleStore(fleet()...), mailer.NewMockSender())
			res := b.TriggerSummary(context.Background(), tt.period)
			assert.Equal(t, tt.success, res.Success)
			if !tt.success {
				assert.Equal(t, recipients.ErrInvalidPeriod.Error(), res.Error)
			}
		})
	}
}

func TestCompose_EmptyFleet(t *testing.T) {
	s := Aggregate(recipients.PeriodMonthly, testNow, nil)
	assert.Zero(t, s.TotalVehicles)
	require.Len(t, s.Sections, 4)

	c, err := Compose(s)
	require.NoError(t, err)
	assert.Equal(t, "Fleet monthly report: 0 expired, 0 expiring", c.Subject)
	assert.Contains(t, c.Text, "Monthly fleet document report")
	assert.Contains(t, c.HTML, "Expired documents: 0")
}
