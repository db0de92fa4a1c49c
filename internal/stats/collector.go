package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/stub-console/internal/adminapi"
	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/models"
)

// Collector collects and aggregates admin API call statistics.
// It satisfies adminapi.Observer.
type Collector struct {
	mu             sync.RWMutex
	startTime      time.Time
	routes         map[string]*models.AtomicRouteStat // "METHOD route" -> stats
	failuresByKind map[apierr.Kind]int64
	recentFailures []models.FailureStat
	maxFailures    int
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		routes:         make(map[string]*models.AtomicRouteStat),
		failuresByKind: make(map[apierr.Kind]int64),
		recentFailures: make([]models.FailureStat, 0),
		maxFailures:    100,
	}
}

// ObserveCall records one admin API call
func (c *Collector) ObserveCall(call adminapi.Call) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := call.Method + " " + call.Route
	rs, ok := c.routes[key]
	if !ok {
		rs = &models.AtomicRouteStat{
			Method: call.Method,
			Route:  call.Route,
		}
		rs.MinTimeNs.Store(call.Duration.Nanoseconds())
		c.routes[key] = rs
	}

	durationNs := call.Duration.Nanoseconds()
	rs.TotalCalls.Add(1)
	rs.TotalTimeNs.Add(durationNs)
	rs.LastCallTime.Store(time.Now())

	for {
		currentMin := rs.MinTimeNs.Load()
		if durationNs >= currentMin || rs.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := rs.MaxTimeNs.Load()
		if durationNs <= currentMax || rs.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	if call.Err == nil {
		return
	}

	rs.TotalFailures.Add(1)
	kind := apierr.Classify(call.Err)
	c.failuresByKind[kind]++

	c.recentFailures = append(c.recentFailures, models.FailureStat{
		Timestamp:  time.Now(),
		Method:     call.Method,
		Route:      call.Route,
		StatusCode: call.StatusCode,
		Kind:       string(kind),
		Error:      call.Err.Error(),
	})
	if len(c.recentFailures) > c.maxFailures {
		c.recentFailures = c.recentFailures[1:]
	}
}

// Snapshot returns the aggregated statistics
func (c *Collector) Snapshot() *models.CallStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalCalls, totalFailures, totalTimeNs int64

	routes := make([]models.RouteStat, 0, len(c.routes))
	for _, rs := range c.routes {
		stat := rs.ToRouteStat()
		routes = append(routes, stat)
		totalCalls += stat.TotalCalls
		totalFailures += stat.TotalFailures
		totalTimeNs += rs.TotalTimeNs.Load()
	}

	// Busiest routes first
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].TotalCalls != routes[j].TotalCalls {
			return routes[i].TotalCalls > routes[j].TotalCalls
		}
		return routes[i].Method+routes[i].Route < routes[j].Method+routes[j].Route
	})

	var avgMs float64
	if totalCalls > 0 {
		avgMs = float64(totalTimeNs) / float64(totalCalls) / 1e6
	}

	byKind := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		byKind[string(k)] = v
	}

	recent := make([]models.FailureStat, len(c.recentFailures))
	copy(recent, c.recentFailures)

	return &models.CallStats{
		TotalCalls:        totalCalls,
		TotalFailures:     totalFailures,
		FailuresByKind:    byKind,
		AvgResponseTimeMs: avgMs,
		StartTime:         c.startTime,
		Uptime:            formatDuration(time.Since(c.startTime)),
		Routes:            routes,
		RecentFailures:    recent,
	}
}

// Route returns statistics for a single route, or nil if it was never called
func (c *Collector) Route(method, route string) *models.RouteStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if rs, ok := c.routes[method+" "+route]; ok {
		stat := rs.ToRouteStat()
		return &stat
	}
	return nil
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.routes = make(map[string]*models.AtomicRouteStat)
	c.failuresByKind = make(map[apierr.Kind]int64)
	c.recentFailures = make([]models.FailureStat, 0)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
