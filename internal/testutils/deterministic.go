// Package testutils provides deterministic generators and fakes for testing the assistant.
// Generated values keep the production format so fixtures look like real data.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	idCounter uint64
	idMutex   sync.Mutex

	timeCounter int64
	timeMutex   sync.Mutex
)

// BaseTime is the first instant handed out by the deterministic clock.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// GenerateUUID returns 00000001-0000-4000-8000-000000000001 style ids in test mode and
// random v4 UUIDs otherwise.
func GenerateUUID(testMode bool) string {
	if testMode {
		return getDeterministicUUID()
	}
	return uuid.New().String()
}

// IDGenerator returns a generator bound to the given mode.
func IDGenerator(testMode bool) func() string {
	return func() string { return GenerateUUID(testMode) }
}

// GetCurrentTime returns time.Now, or a clock ticking one second per call in test mode.
func GetCurrentTime(testMode bool) time.Time {
	if testMode {
		return getDeterministicTime()
	}
	return time.Now()
}

// Clock returns a clock function bound to the given mode.
func Clock(testMode bool) func() time.Time {
	return func() time.Time { return GetCurrentTime(testMode) }
}

// FixedClock always returns t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func getDeterministicUUID() string {
	idMutex.Lock()
	defer idMutex.Unlock()

	idCounter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", idCounter, idCounter)
}

func getDeterministicTime() time.Time {
	timeMutex.Lock()
	defer timeMutex.Unlock()

	timeCounter++
	return BaseTime.Add(time.Duration(timeCounter) * time.Second)
}

// ResetTestCounters resets the deterministic counters. Test code only.
func ResetTestCounters() {
	idMutex.Lock()
	timeMutex.Lock()
	defer idMutex.Unlock()
	defer timeMutex.Unlock()

	idCounter = 0
	timeCounter = 0
}
