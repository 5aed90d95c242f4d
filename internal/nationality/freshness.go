package nationality

import (
	"time"

	"github.com/qabilityp/namechecker/internal/model"
)

// DefaultWindow is how long a refreshed name is served from the store.
const DefaultWindow = 24 * time.Hour

// Verdict is the freshness classification of a stored name.
type Verdict int

const (
	Absent Verdict = iota
	Stale
	Fresh
)

func (v Verdict) String() string {
	switch v {
	case Absent:
		return "absent"
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// Gate decides whether a stored name can skip the upstream call.
type Gate struct {
	Window time.Duration
}

// NewGate returns a Gate with the given window, or DefaultWindow if it is
// not positive.
func NewGate(window time.Duration) Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return Gate{Window: window}
}

// Verdict classifies rec at now. A record is fresh when it was refreshed
// no earlier than now minus the window; the boundary itself is fresh.
func (g Gate) Verdict(rec *model.NameRecord, now time.Time) Verdict {
	if rec == nil {
		return Absent
	}
	if rec.LastAccessed.Before(now.Add(-g.Window)) {
		return Stale
	}
	return Fresh
}
