package monitoring

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemorySnapshot is one sample of runtime memory state.
type MemorySnapshot struct {
	Alloc         uint64    `json:"alloc_bytes"`
	TotalAlloc    uint64    `json:"total_alloc_bytes"`
	Sys           uint64    `json:"sys_bytes"`
	Mallocs       uint64    `json:"mallocs"`
	Frees         uint64    `json:"frees"`
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapSys       uint64    `json:"heap_sys_bytes"`
	HeapIdle      uint64    `json:"heap_idle_bytes"`
	HeapInuse     uint64    `json:"heap_inuse_bytes"`
	HeapObjects   uint64    `json:"heap_objects"`
	StackInuse    uint64    `json:"stack_inuse_bytes"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	NumGC         uint32    `json:"num_gc"`
	NumGoroutine  int       `json:"num_goroutine"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemoryMonitor samples runtime memory stats on an interval and
// triggers a collection when the heap crosses gcThreshold.
type MemoryMonitor struct {
	current     MemorySnapshot
	history     []MemorySnapshot
	maxHistory  int
	interval    time.Duration
	stopChannel chan struct{}
	gcThreshold uint64
	logger      *Logger
	metrics     *Metrics
	mutex       sync.RWMutex
}

func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, logger *Logger, metrics *Metrics) *MemoryMonitor {
	return &MemoryMonitor{
		history:     make([]MemorySnapshot, 0),
		maxHistory:  100,
		interval:    interval,
		stopChannel: make(chan struct{}),
		gcThreshold: gcThreshold,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start begins sampling in a goroutine until Stop is called.
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		mm.logger.Info("memory monitoring started", "interval_ms", mm.interval.Milliseconds())

		for {
			select {
			case <-ticker.C:
				mm.collect()
			case <-mm.stopChannel:
				mm.logger.Info("memory monitoring stopped")
				return
			}
		}
	}()
}

func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

func (mm *MemoryMonitor) collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := MemorySnapshot{
		Alloc:         memStats.Alloc,
		TotalAlloc:    memStats.TotalAlloc,
		Sys:           memStats.Sys,
		Mallocs:       memStats.Mallocs,
		Frees:         memStats.Frees,
		HeapAlloc:     memStats.HeapAlloc,
		HeapSys:       memStats.HeapSys,
		HeapIdle:      memStats.HeapIdle,
		HeapInuse:     memStats.HeapInuse,
		HeapObjects:   memStats.HeapObjects,
		StackInuse:    memStats.StackInuse,
		GCCPUFraction: memStats.GCCPUFraction,
		NumGC:         memStats.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	mm.mutex.Lock()
	mm.current = snap
	mm.history = append(mm.history, snap)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	mm.mutex.Unlock()

	if mm.metrics != nil {
		mm.metrics.RecordGCMetrics(
			int64(memStats.NumGC),
			int64(memStats.PauseTotalNs),
			int64(memStats.HeapAlloc),
			int64(memStats.HeapSys),
		)
	}

	if memStats.HeapAlloc > mm.gcThreshold {
		mm.logger.Warn("heap above threshold, forcing collection",
			"heap_alloc_mb", memStats.HeapAlloc/(1024*1024),
			"gc_threshold_mb", mm.gcThreshold/(1024*1024))

		start := time.Now()
		runtime.GC()
		mm.logger.PerformanceLogger("manual_gc", float64(time.Since(start).Milliseconds()), "ms")
	}

	if snap.Timestamp.Second()%30 == 0 {
		mm.logger.SystemLogger("memory_stats", fmt.Sprintf(
			"alloc:%dMB sys:%dMB heap:%dMB/%dMB gc:%d goroutines:%d",
			snap.Alloc/(1024*1024),
			snap.Sys/(1024*1024),
			snap.HeapInuse/(1024*1024),
			snap.HeapSys/(1024*1024),
			snap.NumGC,
			snap.NumGoroutine,
		))
	}
}

// GetStats returns the latest sample plus derived utilization figures
// for the /metrics endpoint.
func (mm *MemoryMonitor) GetStats() map[string]interface{} {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if mm.current.HeapSys > 0 {
		heapUtilization = float64(mm.current.HeapInuse) / float64(mm.current.HeapSys)
	}

	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		window := mm.history[len(mm.history)-1].Timestamp.Sub(mm.history[0].Timestamp).Seconds()
		if window > 0 {
			mallocRate = float64(mm.current.Mallocs-mm.history[0].Mallocs) / window
		}
	}

	return map[string]interface{}{
		"current": map[string]interface{}{
			"alloc_mb":        mm.current.Alloc / (1024 * 1024),
			"total_alloc_mb":  mm.current.TotalAlloc / (1024 * 1024),
			"sys_mb":          mm.current.Sys / (1024 * 1024),
			"heap_alloc_mb":   mm.current.HeapAlloc / (1024 * 1024),
			"heap_sys_mb":     mm.current.HeapSys / (1024 * 1024),
			"heap_inuse_mb":   mm.current.HeapInuse / (1024 * 1024),
			"gc_cpu_fraction": mm.current.GCCPUFraction,
			"num_gc":          mm.current.NumGC,
			"num_goroutine":   mm.current.NumGoroutine,
		},
		"derived": map[string]interface{}{
			"heap_utilization":    heapUtilization,
			"malloc_rate_per_sec": mallocRate,
		},
		"history_count":   len(mm.history),
		"gc_threshold_mb": mm.gcThreshold / (1024 * 1024),
	}
}
