package health

import (
	"fmt"

	"github.com/coreops/coreops/metrics"
)

// fallbackScore is reported when scoring itself fails. A fixed neutral value
// beats an unhandled failure in the one signal that must always exist.
const fallbackScore = 50

// Deduction weights. Each one is independent and fires on its own condition;
// absent snapshot sections contribute nothing.
const (
	penaltyMemoryPressure   = 20 // memory pressure flag set
	penaltyProcessMemory    = 10 // process memory percent > 80
	penaltyPoolStarved      = 15 // available pool connections < 2
	penaltyTaskFailures     = 15 // failed tasks > 10% of completed
	penaltyStoreUnreachable = 10 // external store unreachable
	penaltyCPU              = 5  // CPU percent > 90
	penaltyDisk             = 5  // disk percent > 90
)

// Score reduces a snapshot to one integer in [0,100]. It starts at 100,
// subtracts the documented weights and clamps. Any panic during scoring
// yields the fallback score instead of propagating.
func Score(s *Snapshot) (score int) {
	defer func() {
		if recover() != nil {
			score = fallbackScore
		}
		metrics.HealthScore.Set(float64(score))
	}()

	score = 100
	if s.MemoryPressure {
		score -= penaltyMemoryPressure
	}
	if s.System != nil && s.System.ProcessMemPercent > 80 {
		score -= penaltyProcessMemory
	}
	if s.Pool != nil && s.Pool.Available < 2 {
		score -= penaltyPoolStarved
	}
	if s.Queue != nil && s.Queue.Completed > 0 &&
		float64(s.Queue.Failed)/float64(s.Queue.Completed) > 0.10 {
		score -= penaltyTaskFailures
	}
	if s.Store != nil && !s.Store.Reachable {
		score -= penaltyStoreUnreachable
	}
	if s.System != nil && s.System.CPUPercent > 90 {
		score -= penaltyCPU
	}
	if s.System != nil && s.System.Disk.Percent > 90 {
		score -= penaltyDisk
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one discrete condition derived from a snapshot.
type Alert struct {
	Type     string
	Severity Severity
	Message  string
}

// Alerts derives alert records from the same thresholds the score uses.
// It is independent of Score so the two can be tested separately.
func Alerts(s *Snapshot) []Alert {
	var alerts []Alert
	if s.MemoryPressure {
		alerts = append(alerts, Alert{
			Type:     "memory_pressure",
			Severity: SeverityWarning,
			Message:  "memory pressure detected, resource expiry tightened",
		})
	}
	if s.System != nil && s.System.ProcessMemPercent > 80 {
		alerts = append(alerts, Alert{
			Type:     "process_memory",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("process memory at %.1f%%", s.System.ProcessMemPercent),
		})
	}
	if s.Pool != nil && s.Pool.Available < 2 {
		sev := SeverityWarning
		if s.Pool.Available == 0 {
			sev = SeverityCritical
		}
		alerts = append(alerts, Alert{
			Type:     "pool_starved",
			Severity: sev,
			Message:  fmt.Sprintf("%d of %d pool connections available", s.Pool.Available, s.Pool.Max),
		})
	}
	if s.Queue != nil && s.Queue.Completed > 0 &&
		float64(s.Queue.Failed)/float64(s.Queue.Completed) > 0.10 {
		alerts = append(alerts, Alert{
			Type:     "task_failures",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d failed tasks against %d completed", s.Queue.Failed, s.Queue.Completed),
		})
	}
	if s.Store != nil && !s.Store.Reachable {
		alerts = append(alerts, Alert{
			Type:     "store_unreachable",
			Severity: SeverityCritical,
			Message:  "external store is unreachable",
		})
	}
	if s.System != nil && s.System.CPUPercent > 90 {
		alerts = append(alerts, Alert{
			Type:     "cpu_high",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("CPU at %.1f%%", s.System.CPUPercent),
		})
	}
	if s.System != nil && s.System.Disk.Percent > 90 {
		alerts = append(alerts, Alert{
			Type:     "disk_full",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("disk at %.1f%%", s.System.Disk.Percent),
		})
	}
	return alerts
}
