package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/middleware"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/notification"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/report"
)

// DefaultCheckDays is the lookahead used when a manual check omits days.
const DefaultCheckDays = 30

// ManualChecker runs an on-demand expiry check.
type ManualChecker interface {
	TriggerManualCheck(ctx context.Context, days int) notification.CheckResult
}

// SummaryTrigger builds and sends an on-demand digest.
type SummaryTrigger interface {
	TriggerSummary(ctx context.Context, period string) report.SummaryResult
}

// NotificationHandler exposes the manual notification triggers.
type NotificationHandler struct {
	checker   ManualChecker
	summaries SummaryTrigger
	timeout   time.Duration
	log       *logrus.Entry
}

// NewNotificationHandler creates a handler. Each request runs for at most timeout.
func NewNotificationHandler(checker ManualChecker, summaries SummaryTrigger, timeout time.Duration) *NotificationHandler {
	return &NotificationHandler{
		checker:   checker,
		summaries: summaries,
		timeout:   timeout,
		log:       logger.WithComponent("http"),
	}
}

// TriggerCheck handles POST /api/notifications/check?days=N.
func (h *NotificationHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := DefaultCheckDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, notification.CheckResult{Error: notification.ErrInvalidDays.Error(), Errors: []notification.SendError{}})
			return
		}
		days = n
	}
	if days < 1 || days > notification.MaxCheckDays {
		writeJSON(w, http.StatusBadRequest, notification.CheckResult{Error: notification.ErrInvalidDays.Error(), Errors: []notification.SendError{}})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	h.auditLog(r).WithField("days", days).Info("Manual expiry check requested")
	res := h.checker.TriggerManualCheck(ctx, days)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// TriggerSummary handles POST /api/notifications/summary?period=weekly|monthly.
func (h *NotificationHandler) TriggerSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = string(recipients.PeriodWeekly)
	}
	if _, err := recipients.ParsePeriod(period); err != nil {
		writeJSON(w, http.StatusBadRequest, report.SummaryResult{Error: err.Error(), Errors: []report.SendError{}})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	h.auditLog(r).WithField("period", period).Info("Manual summary requested")
	res := h.summaries.TriggerSummary(ctx, period)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (h *NotificationHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *NotificationHandler) auditLog(r *http.Request) *logrus.Entry {
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		return h.log.WithField("user", claims.Username)
	}
	return h.log
}

// Health reports whether the service and its database are reachable.
func Health(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if ping != nil {
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
