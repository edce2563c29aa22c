package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryFleetController records disable and suspend commands. Commands counts only
// state changes, so repeated commands for the same target leave it untouched.
type MemoryFleetController struct {
	mu               sync.Mutex
	disabledVehicles map[string]string
	suspendedDrivers map[string]string
	Commands         int
}

func NewMemoryFleetController() *MemoryFleetController {
	return &MemoryFleetController{
		disabledVehicles: make(map[string]string),
		suspendedDrivers: make(map[string]string),
	}
}

func (f *MemoryFleetController) DisableVehicle(_ context.Context, vehicleID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.disabledVehicles[vehicleID]; done {
		return nil
	}
	f.disabledVehicles[vehicleID] = reason
	f.Commands++
	return nil
}

func (f *MemoryFleetController) SuspendDriver(_ context.Context, driverID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.suspendedDrivers[driverID]; done {
		return nil
	}
	f.suspendedDrivers[driverID] = reason
	f.Commands++
	return nil
}

func (f *MemoryFleetController) IsDisabled(vehicleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.disabledVehicles[vehicleID]
	return ok
}

func (f *MemoryFleetController) IsSuspended(driverID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.suspendedDrivers[driverID]
	return ok
}

type MemoryReportQueue struct {
	mu       sync.Mutex
	requests []ReportRequest
}

func NewMemoryReportQueue() *MemoryReportQueue {
	return &MemoryReportQueue{}
}

func (q *MemoryReportQueue) Enqueue(_ context.Context, req ReportRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return nil
}

func (q *MemoryReportQueue) Requests() []ReportRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ReportRequest(nil), q.requests...)
}

// MemoryRuleLock is an in-process lease for single-replica tests.
type MemoryRuleLock struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemoryRuleLock() *MemoryRuleLock {
	return &MemoryRuleLock{leases: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryRuleLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, held := l.leases[key]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.leases[key] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key].Equal(until) {
			delete(l.leases, key)
		}
	}, true, nil
}
