package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// unhealthyAfter is the number of consecutive failures that marks a
// connector unhealthy rather than degraded
const unhealthyAfter = 3

// HealthStatus represents the health status of a connector
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	Error     string                 `json:"error,omitempty"`
}

// HealthChecker tracks a connector's health from explicit checks and from
// the outcome of its remote operations
type HealthChecker struct {
	name             string
	timeout          time.Duration
	status           *HealthStatus
	statusMutex      sync.RWMutex
	checkFunc        func(ctx context.Context) error
	logger           *zap.Logger
	checkCount       int64
	failureCount     int64
	consecutiveFails int
	now              func() time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(name string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		name:    name,
		timeout: 10 * time.Second,
		status: &HealthStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Details:   make(map[string]interface{}),
		},
		logger: logger.With(zap.String("component", "health_checker")),
		now:    time.Now,
	}
}

// SetCheckFunc sets the function run by Check
func (hc *HealthChecker) SetCheckFunc(fn func(ctx context.Context) error) {
	hc.checkFunc = fn
}

// Check runs the check function and records its outcome. Without one the
// connector is reported healthy.
func (hc *HealthChecker) Check(ctx context.Context) error {
	var err error
	if hc.checkFunc != nil {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		defer cancel()
		err = hc.checkFunc(checkCtx)
	}
	hc.Record(err)
	return err
}

// Record updates the status from the outcome of a remote operation
func (hc *HealthChecker) Record(err error) {
	atomic.AddInt64(&hc.checkCount, 1)

	hc.statusMutex.Lock()
	defer hc.statusMutex.Unlock()

	hc.status.Timestamp = hc.now()

	if err != nil {
		atomic.AddInt64(&hc.failureCount, 1)
		hc.consecutiveFails++

		if hc.consecutiveFails >= unhealthyAfter {
			hc.status.Status = StatusUnhealthy
		} else {
			hc.status.Status = StatusDegraded
		}
		hc.status.Error = err.Error()
		hc.status.Details["consecutive_failures"] = hc.consecutiveFails

		hc.logger.Warn("health check failed",
			zap.Error(err),
			zap.String("status", hc.status.Status),
			zap.Int("consecutive_failures", hc.consecutiveFails))
	} else {
		hc.consecutiveFails = 0
		hc.status.Status = StatusHealthy
		hc.status.Error = ""
		delete(hc.status.Details, "consecutive_failures")
	}

	hc.status.Details["check_count"] = atomic.LoadInt64(&hc.checkCount)
	hc.status.Details["failure_count"] = atomic.LoadInt64(&hc.failureCount)
}

// GetStatus returns a copy of the current health status
func (hc *HealthChecker) GetStatus() *HealthStatus {
	hc.statusMutex.RLock()
	defer hc.statusMutex.RUnlock()

	statusCopy := &HealthStatus{
		Status:    hc.status.Status,
		Timestamp: hc.status.Timestamp,
		Details:   make(map[string]interface{}, len(hc.status.Details)),
		Error:     hc.status.Error,
	}
	for k, v := range hc.status.Details {
		statusCopy.Details[k] = v
	}
	return statusCopy
}

// IsHealthy returns true if the last outcome was a success
func (hc *HealthChecker) IsHealthy() bool {
	hc.statusMutex.RLock()
	defer hc.statusMutex.RUnlock()
	return hc.status.Status == StatusHealthy
}
