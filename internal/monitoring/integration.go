package monitoring

import (
	"sync"
)

//nolint:gochecknoglobals // process-wide default used when no collector is configured
var (
	globalCollector *Collector
	globalMutex     sync.RWMutex
)

// SetGlobalCollector sets the global metrics collector.
func SetGlobalCollector(collector *Collector) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalCollector = collector
}

// GetGlobalCollector returns the global metrics collector.
// Returns nil if no global collector has been set.
func GetGlobalCollector() *Collector {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalCollector
}

// Resolve returns c, or the global collector when c is nil.
func Resolve(c *Collector) *Collector {
	if c != nil {
		return c
	}
	return GetGlobalCollector()
}

// IsGlobalMonitoringEnabled returns true if global monitoring is enabled.
func IsGlobalMonitoringEnabled() bool {
	return GetGlobalCollector().IsEnabled()
}

// EnableGlobalMonitoring creates and sets a global metrics collector.
func EnableGlobalMonitoring() {
	SetGlobalCollector(NewCollector(true))
}

// DisableGlobalMonitoring disables the global metrics collector.
func DisableGlobalMonitoring() {
	if collector := GetGlobalCollector(); collector != nil {
		collector.SetEnabled(false)
	}
}
