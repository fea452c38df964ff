package domain

import "time"

// QueuedJob is one scheduling unit: a (stage, matrix variant) pair
// awaiting dispatch.
type QueuedJob struct {
	RunID            ID
	PipelineID       ID
	StageName        string
	JobIndex         *int // matrix variant, nil for non-matrix stages
	Priority         Priority
	QueuedAt         time.Time
	Labels           []string
	Capabilities     []Capability
	ConcurrencyGroup string
	Attempt          int
}

// Key identifies the (stage, variant) this job represents within a run,
// independent of queued_at/attempt — used to correlate a dequeued job
// back to its DAG node.
func (j QueuedJob) Key() string {
	if j.JobIndex == nil {
		return j.StageName
	}
	return j.StageName + "#" + itoa(*j.JobIndex)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
