// Package recipients maps vehicles and their alerts to notification addressees.
package recipients

import (
	"errors"
	"sort"
	"strings"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
)

// Period selects the audience of a digest report.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ErrInvalidPeriod is returned for a digest period other than weekly or monthly.
var ErrInvalidPeriod = errors.New("invalid summary period")

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodWeekly, PeriodMonthly:
		return p, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// Config lists the configured recipient groups.
type Config struct {
	Defaults    []string
	Escalation  []string
	Departments map[string][]string
}

// Resolver builds recipient sets from static configuration.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver. cfg is copied.
func NewResolver(cfg Config) *Resolver {
	depts := make(map[string][]string, len(cfg.Departments))
	for k, v := range cfg.Departments {
		depts[k] = append([]string(nil), v...)
	}
	return &Resolver{cfg: Config{
		Defaults:    append([]string(nil), cfg.Defaults...),
		Escalation:  append([]string(nil), cfg.Escalation...),
		Departments: depts,
	}}
}

// ResolveRecipients returns the defaults, the vehicle's department list and,
// when any alert is expired or high, the escalation tier. The result is
// sorted and duplicate free; addresses without '@' are dropped.
func (r *Resolver) ResolveRecipients(v *models.Vehicle, alerts []models.ExpiryAlert) []string {
	groups := [][]string{r.cfg.Defaults, r.cfg.Departments[string(v.Department)]}
	if models.HasEscalation(alerts) {
		groups = append(groups, r.cfg.Escalation)
	}
	return union(groups...)
}

// SummaryRecipients returns the audience of a digest: defaults plus the
// escalation tier weekly, defaults plus every department list monthly.
func (r *Resolver) SummaryRecipients(p Period) ([]string, error) {
	switch p {
	case PeriodWeekly:
		return union(r.cfg.Defaults, r.cfg.Escalation), nil
	case PeriodMonthly:
		groups := [][]string{r.cfg.Defaults}
		for _, list := range r.cfg.Departments {
			groups = append(groups, list)
		}
		return union(groups...), nil
	default:
		return nil, ErrInvalidPeriod
	}
}

func union(groups ...[]string) []string {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, addr := range g {
			a := strings.ToLower(strings.TrimSpace(addr))
			if !strings.Contains(a, "@") {
				continue
			}
			set[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
