package nationality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qabilityp/namechecker/internal/model"
)

func TestGate_Verdict(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	gate := NewGate(0)

	tests := []struct {
		name string
		rec  *model.NameRecord
		want Verdict
	}{
		{"absent", nil, Absent},
		{"just refreshed", &model.NameRecord{LastAccessed: now}, Fresh},
		{"one hour old", &model.NameRecord{LastAccessed: now.Add(-time.Hour)}, Fresh},
		{"exactly at window", &model.NameRecord{LastAccessed: now.Add(-24 * time.Hour)}, Fresh},
		{"just past window", &model.NameRecord{LastAccessed: now.Add(-24*time.Hour - time.Nanosecond)}, Stale},
		{"days old", &model.NameRecord{LastAccessed: now.Add(-72 * time.Hour)}, Stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, gate.Verdict(tt.rec, now))
		})
	}
}

func TestGate_CustomWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	gate := NewGate(time.Hour)
	rec := &model.NameRecord{LastAccessed: now.Add(-2 * time.Hour)}

	assert.Equal(t, time.Hour, gate.Window)
	assert.Equal(t, Stale, gate.Verdict(rec, now))
	assert.Equal(t, DefaultWindow, NewGate(-time.Minute).Window)
}

func TestVerdict_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "unknown", Verdict(9).String())
}
