package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/repoyield/repoyield/internal/errors"
)

type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

// DegradationConfig tunes the error-rate thresholds per level.
type DegradationConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DegradedThreshold   float64       `json:"degraded_threshold"`
	CriticalThreshold   float64       `json:"critical_threshold"`
	EmergencyThreshold  float64       `json:"emergency_threshold"`
	RecoveryTimeWindow  time.Duration `json:"recovery_time_window"`
	HealthCheckTimeout  time.Duration `json:"health_check_timeout"`
	MaxDegradedDuration time.Duration `json:"max_degraded_duration"`
}

func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		HealthCheckInterval: 30 * time.Second,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
		RecoveryTimeWindow:  5 * time.Minute,
		HealthCheckTimeout:  5 * time.Second,
		MaxDegradedDuration: 10 * time.Minute,
	}
}

// ServiceHealth is the tracked state of one upstream dependency.
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     error            `json:"-"`
	LastErrorTime time.Time        `json:"last_error_time"`
	DegradedSince *time.Time       `json:"degraded_since,omitempty"`
	StatusMessage string           `json:"status_message"`

	windowStart time.Time
}

// HealthCheckFunc probes a dependency. A nil error counts as a
// successful request against its error rate.
type HealthCheckFunc func(ctx context.Context) error

// DegradationManager tracks per-service error rates over a rolling
// window and classifies each service into a degradation level.
type DegradationManager struct {
	config       DegradationConfig
	services     map[string]*ServiceHealth
	healthChecks map[string]HealthCheckFunc
	mutex        sync.RWMutex
}

func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:       config,
		services:     make(map[string]*ServiceHealth),
		healthChecks: make(map[string]HealthCheckFunc),
	}
}

// RegisterService attaches a periodic health check to a service.
// Services tracked only through RecordRequest/RecordError do not need
// registering; they are created on first use.
func (dm *DegradationManager) RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.ensureService(serviceName)
	if healthCheck != nil {
		dm.healthChecks[serviceName] = healthCheck
	}
}

// ensureService returns the tracked state, creating it if needed.
// Callers hold the write lock.
func (dm *DegradationManager) ensureService(serviceName string) *ServiceHealth {
	if service, exists := dm.services[serviceName]; exists {
		return service
	}

	service := &ServiceHealth{
		ServiceName:   serviceName,
		Level:         LevelNormal,
		StatusMessage: "service is healthy",
		windowStart:   time.Now(),
	}
	dm.services[serviceName] = service
	return service
}

func (dm *DegradationManager) RecordRequest(serviceName string, success bool) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service := dm.ensureService(serviceName)
	dm.rollWindow(service)

	service.TotalRequests++
	if !success {
		service.ErrorCount++
		service.LastErrorTime = time.Now()
		service.LastError = errors.NewInternalError("service request failed", nil)
	}

	dm.reclassify(service)
}

func (dm *DegradationManager) RecordError(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service := dm.ensureService(serviceName)
	dm.rollWindow(service)

	service.TotalRequests++
	service.ErrorCount++
	service.LastError = err
	service.LastErrorTime = time.Now()

	dm.reclassify(service)
}

// rollWindow restarts the error-rate counters once the window has
// elapsed, so an old burst of failures cannot pin a service degraded.
func (dm *DegradationManager) rollWindow(service *ServiceHealth) {
	if time.Since(service.windowStart) > dm.config.RecoveryTimeWindow {
		service.windowStart = time.Now()
		service.TotalRequests = 0
		service.ErrorCount = 0
	}
}

func (dm *DegradationManager) reclassify(service *ServiceHealth) {
	if service.TotalRequests > 0 {
		service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)
	} else {
		service.ErrorRate = 0
	}

	oldLevel := service.Level
	now := time.Now()

	var newLevel DegradationLevel
	var statusMessage string
	switch {
	case service.ErrorRate >= dm.config.EmergencyThreshold:
		newLevel = LevelEmergency
		statusMessage = "emergency, most requests failing"
	case service.ErrorRate >= dm.config.CriticalThreshold:
		newLevel = LevelCritical
		statusMessage = "critical, elevated error rate"
	case service.ErrorRate >= dm.config.DegradedThreshold:
		newLevel = LevelDegraded
		statusMessage = "degraded, moderate error rate"
	default:
		newLevel = LevelNormal
		statusMessage = "service is healthy"
	}

	if newLevel == LevelDegraded && service.DegradedSince != nil {
		if now.Sub(*service.DegradedSince) > dm.config.MaxDegradedDuration {
			newLevel = LevelEmergency
			statusMessage = "emergency, degraded past the recovery deadline"
		}
	}

	if newLevel == LevelDegraded && oldLevel != LevelDegraded {
		service.DegradedSince = &now
	} else if newLevel != LevelDegraded {
		service.DegradedSince = nil
	}

	service.Level = newLevel
	service.StatusMessage = statusMessage

	if oldLevel != newLevel {
		slog.Warn("service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// GetAllServiceHealth returns a snapshot of every tracked service.
func (dm *DegradationManager) GetAllServiceHealth() map[string]*ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]*ServiceHealth, len(dm.services))
	for name, service := range dm.services {
		snapshot := *service
		result[name] = &snapshot
	}
	return result
}

// StartHealthChecks probes every registered health check on the
// configured interval until the context is cancelled.
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.runHealthChecks(ctx)
		}
	}
}

func (dm *DegradationManager) runHealthChecks(ctx context.Context) {
	dm.mutex.RLock()
	checks := make(map[string]HealthCheckFunc, len(dm.healthChecks))
	for name, check := range dm.healthChecks {
		checks[name] = check
	}
	dm.mutex.RUnlock()

	for serviceName, healthCheck := range checks {
		go func(name string, check HealthCheckFunc) {
			checkCtx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
			defer cancel()

			if err := check(checkCtx); err != nil {
				dm.RecordError(name, errors.WrapError(err, "health check failed for service %s", name))
			} else {
				dm.RecordRequest(name, true)
			}
		}(serviceName, healthCheck)
	}
}

var globalDegradationManager = NewDegradationManager(DefaultDegradationConfig())

func RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	globalDegradationManager.RegisterService(serviceName, healthCheck)
}

func RecordRequest(serviceName string, success bool) {
	globalDegradationManager.RecordRequest(serviceName, success)
}

func RecordError(serviceName string, err error) {
	globalDegradationManager.RecordError(serviceName, err)
}

func GetAllServiceHealth() map[string]*ServiceHealth {
	return globalDegradationManager.GetAllServiceHealth()
}

// StartHealthChecks runs the global manager's probe loop in the
// background.
func StartHealthChecks(ctx context.Context) {
	go globalDegradationManager.StartHealthChecks(ctx)
}
