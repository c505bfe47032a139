// Package scheduler runs the expiry checks and digest reports on fixed cron
// cadences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/notification"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/report"
)

// Job names.
const (
	JobDailyExpiryCheck  = "daily-expiry-check"
	JobWeeklyExpiryCheck = "weekly-expiry-check"
	JobWeeklySummary     = "weekly-summary"
	JobMonthlySummary    = "monthly-summary"
)

// Lookahead of the scheduled checks, in days.
const (
	DailyCheckDays  = 30
	WeeklyCheckDays = 7
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrStopped        = errors.New("scheduler stopped")
)

// ExpiryChecker runs an expiry check.
type ExpiryChecker interface {
	RunExpiryCheck(ctx context.Context, days int) notification.CheckResult
}

// SummarySender builds and sends a digest.
type SummarySender interface {
	BuildAndSendSummary(ctx context.Context, period recipients.Period) report.SummaryResult
}

// Specs holds the cron expression of each job.
type Specs struct {
	DailyCheck     string
	WeeklyCheck    string
	WeeklySummary  string
	MonthlySummary string
}

// DefaultSpecs: daily 09:00, Monday 08:00, Friday 17:00, the 1st at 10:00.
var DefaultSpecs = Specs{
	DailyCheck:     "0 9 * * *",
	WeeklyCheck:    "0 8 * * 1",
	WeeklySummary:  "0 17 * * 5",
	MonthlySummary: "0 10 1 * *",
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name string
	Spec string
	Next time.Time
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Scheduler owns the cron engine and the jobs registered on it.
type Scheduler struct {
	mu        sync.Mutex
	state     state
	engine    *cron.Cron
	checker   ExpiryChecker
	summaries SummarySender
	specs     Specs
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]cron.EntryID
	jobSpecs  map[string]string
	log       *logrus.Entry
}

// New creates a scheduler evaluating specs in loc. Each run is bounded by timeout.
func New(checker ExpiryChecker, summaries SummarySender, loc *time.Location, specs Specs, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log := logger.WithComponent("scheduler")
	cronLog := cron.PrintfLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		checker:   checker,
		summaries: summaries,
		specs:     specs,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]cron.EntryID),
		jobSpecs:  make(map[string]string),
		log:       log,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning:
		return ErrAlreadyRunning
	case stateStopped:
		return ErrStopped
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{JobDailyExpiryCheck, s.specs.DailyCheck, s.RunDailyExpiryCheck},
		{JobWeeklyExpiryCheck, s.specs.WeeklyCheck, s.RunWeeklyExpiryCheck},
		{JobWeeklySummary, s.specs.WeeklySummary, s.RunWeeklySummary},
		{JobMonthlySummary, s.specs.MonthlySummary, s.RunMonthlySummary},
	}
	for _, j := range jobs {
		id, err := s.engine.AddFunc(j.spec, s.wrap(j.name, j.run))
		if err != nil {
			for _, added := range s.entries {
				s.engine.Remove(added)
			}
			clear(s.entries)
			clear(s.jobSpecs)
			return fmt.Errorf("add %s job %q: %w", j.name, j.spec, err)
		}
		s.entries[j.name] = id
		s.jobSpecs[j.name] = j.spec
	}

	s.engine.Start()
	s.state = stateRunning
	s.log.WithField("jobs", len(s.entries)).Info("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		s.cancel()
		return
	}
	s.state = stateStopped
	s.mu.Unlock()

	s.log.Info("Stopping scheduler")
	s.cancel()
	<-s.engine.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Jobs lists the registered jobs with their next activation.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobInfo
	for _, name := range []string{JobDailyExpiryCheck, JobWeeklyExpiryCheck, JobWeeklySummary, JobMonthlySummary} {
		id, ok := s.entries[name]
		if !ok {
			continue
		}
		out = append(out, JobInfo{Name: name, Spec: s.jobSpecs[name], Next: s.engine.Entry(id).Next})
	}
	return out
}

// RunDailyExpiryCheck alerts on documents due within 30 days.
func (s *Scheduler) RunDailyExpiryCheck(ctx context.Context) {
	s.logCheck(JobDailyExpiryCheck, s.checker.RunExpiryCheck(ctx, DailyCheckDays))
}

// RunWeeklyExpiryCheck alerts on documents due within 7 days.
func (s *Scheduler) RunWeeklyExpiryCheck(ctx context.Context) {
	s.logCheck(JobWeeklyExpiryCheck, s.checker.RunExpiryCheck(ctx, WeeklyCheckDays))
}

// RunWeeklySummary sends the weekly digest.
func (s *Scheduler) RunWeeklySummary(ctx context.Context) {
	s.logSummary(JobWeeklySummary, s.summaries.BuildAndSendSummary(ctx, recipients.PeriodWeekly))
}

// RunMonthlySummary sends the monthly digest.
func (s *Scheduler) RunMonthlySummary(ctx context.Context) {
	s.logSummary(JobMonthlySummary, s.summaries.BuildAndSendSummary(ctx, recipients.PeriodMonthly))
}

func (s *Scheduler) wrap(name string, run func(context.Context)) func() {
	return func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
			defer cancel()
		}
		if ctx.Err() != nil {
			return
		}
		s.log.WithField("job", name).Info("Cron job triggered")
		run(ctx)
	}
}

func (s *Scheduler) logCheck(job string, res notification.CheckResult) {
	log := s.log.WithFields(logrus.Fields{
		"job":                job,
		"run_id":             res.RunID,
		"vehicles_processed": res.VehiclesProcessed,
		"notifications_sent": res.NotificationsSent,
		"errors":             len(res.Errors),
	})
	if !res.Success {
		log.Errorf("Expiry check failed: %s", res.Error)
		return
	}
	log.Info("Expiry check finished")
}

func (s *Scheduler) logSummary(job string, res report.SummaryResult) {
	log := s.log.WithFields(logrus.Fields{"job": job, "sent": res.Sent, "errors": len(res.Errors)})
	if !res.Success {
		log.Errorf("Summary report failed: %s", res.Error)
		return
	}
	log.Info("Summary report finished")
}
