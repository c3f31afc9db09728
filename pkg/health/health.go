// Package health provides liveness and readiness checking with pluggable
// dependency checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health of a single component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// CheckFunc probes a single dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Check is a named dependency check.
type Check struct {
	Name  string
	Check CheckFunc
}

// Result is the outcome of one dependency check.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Report aggregates all check results.
type Report struct {
	Status  Status   `json:"status"`
	Results []Result `json:"checks"`
}

// Checker runs dependency checks and serves liveness/readiness endpoints.
type Checker struct {
	mu      sync.RWMutex
	checks  []Check
	timeout time.Duration
}

// NewChecker creates a Checker. Each individual check is bounded by timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout}
}

// Register adds a named dependency check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, Check{Name: name, Check: fn})
}

// Run executes all registered checks and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	report := Report{Status: StatusUp}
	for _, chk := range checks {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := chk.Check(checkCtx)
		cancel()

		result := Result{
			Name:     chk.Name,
			Status:   StatusUp,
			Duration: time.Since(start) / time.Millisecond,
		}
		if err != nil {
			result.Status = StatusDown
			result.Error = err.Error()
			report.Status = StatusDown
		}
		report.Results = append(report.Results, result)
	}
	return report
}

// LivenessHandler reports process liveness. It never checks dependencies.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler runs all dependency checks and reports 503 when any fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
