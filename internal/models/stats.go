package models

import (
	"sync/atomic"
	"time"
)

// CallStats represents aggregate statistics for admin API calls
type CallStats struct {
	TotalCalls        int64            `json:"totalCalls"`
	TotalFailures     int64            `json:"totalFailures"`
	FailuresByKind    map[string]int64 `json:"failuresByKind"`
	AvgResponseTimeMs float64          `json:"avgResponseTimeMs"`
	StartTime         time.Time        `json:"startTime"`
	Uptime            string           `json:"uptime"`
	Routes            []RouteStat      `json:"routes"`
	RecentFailures    []FailureStat    `json:"recentFailures"`
}

// RouteStat represents statistics for one admin API route
type RouteStat struct {
	Method            string  `json:"method"`
	Route             string  `json:"route"` // Route template, e.g. /admin/stubs/{id}
	TotalCalls        int64   `json:"totalCalls"`
	TotalFailures     int64   `json:"totalFailures"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	MinResponseTimeMs float64 `json:"minResponseTimeMs"`
	MaxResponseTimeMs float64 `json:"maxResponseTimeMs"`
	LastCallTime      string  `json:"lastCallTime,omitempty"`
}

// FailureStat represents one failed admin API call
type FailureStat struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	StatusCode int       `json:"statusCode,omitempty"`
	Kind       string    `json:"kind"`
	Error      string    `json:"error"`
}

// AtomicRouteStat is a thread-safe version of route statistics
type AtomicRouteStat struct {
	Method        string
	Route         string
	TotalCalls    atomic.Int64
	TotalFailures atomic.Int64
	TotalTimeNs   atomic.Int64
	MinTimeNs     atomic.Int64
	MaxTimeNs     atomic.Int64
	LastCallTime  atomic.Value // stores time.Time
}

// ToRouteStat converts to a regular RouteStat
func (a *AtomicRouteStat) ToRouteStat() RouteStat {
	calls := a.TotalCalls.Load()
	totalTimeNs := a.TotalTimeNs.Load()
	var avgMs float64
	if calls > 0 {
		avgMs = float64(totalTimeNs) / float64(calls) / 1e6
	}

	var last string
	if t, ok := a.LastCallTime.Load().(time.Time); ok && !t.IsZero() {
		last = t.Format(time.RFC3339)
	}

	return RouteStat{
		Method:            a.Method,
		Route:             a.Route,
		TotalCalls:        calls,
		TotalFailures:     a.TotalFailures.Load(),
		AvgResponseTimeMs: avgMs,
		MinResponseTimeMs: float64(a.MinTimeNs.Load()) / 1e6,
		MaxResponseTimeMs: float64(a.MaxTimeNs.Load()) / 1e6,
		LastCallTime:      last,
	}
}
