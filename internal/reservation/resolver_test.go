package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }

func TestResolveLocalIntentOverridesSnapshot(t *testing.T) {
	// A stale snapshot claims the slot is free; local knowledge wins.
	raw := RawSlotAttributes{}

	tests := []struct {
		name   string
		status IntentStatus
		want   DisplayState
	}{
		{"pre-reserved by me", PreReservedByMe, DisplayState{IsPreReserved: true, SelfReserved: true}},
		{"pre-reserved by others", PreReservedByOthers, DisplayState{IsPreReserved: true}},
		{"reserved", Reserved, DisplayState{IsReserve: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := &Intent{Status: tt.status}
			got := Resolve(raw, intent, false, i64(1))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCancellationIgnoresStaleLock(t *testing.T) {
	// The snapshot still reports the lock we released; the marker
	// suppresses it while preserving the reserve flag.
	raw := RawSlotAttributes{
		IsPreReserved:     true,
		SelfReserved:      true,
		PreReservedUserID: i64(7),
	}

	got := Resolve(raw, nil, true, i64(7))
	assert.False(t, got.IsPreReserved)
	assert.False(t, got.SelfReserved)

	raw.IsReserve = true
	got = Resolve(raw, nil, true, i64(7))
	assert.True(t, got.IsReserve)
}

func TestResolveSelfIdentityPrecedence(t *testing.T) {
	// preReservedUserId matching the current user outranks the raw
	// booleans.
	raw := RawSlotAttributes{PreReservedUserID: i64(7)}

	got := Resolve(raw, nil, false, i64(7))
	assert.True(t, got.IsPreReserved)
	assert.True(t, got.SelfReserved)

	got = Resolve(raw, nil, false, i64(9))
	assert.True(t, got.IsPreReserved)
	assert.False(t, got.SelfReserved)

	got = Resolve(raw, nil, false, nil)
	assert.False(t, got.IsPreReserved)
	assert.False(t, got.SelfReserved)
}

func TestResolveFallsThroughToSnapshot(t *testing.T) {
	raw := RawSlotAttributes{IsReserve: true, IsPreReserved: true}
	got := Resolve(raw, nil, false, i64(1))
	assert.Equal(t, DisplayState{IsPreReserved: true, IsReserve: true}, got)
}

func TestDisplayStateActions(t *testing.T) {
	assert.True(t, DisplayState{}.CanLock())
	assert.False(t, DisplayState{IsReserve: true}.CanLock())
	assert.False(t, DisplayState{IsPreReserved: true}.CanLock())

	assert.True(t, DisplayState{IsPreReserved: true, SelfReserved: true}.CanRelease())
	assert.False(t, DisplayState{IsPreReserved: true}.CanRelease())
	assert.False(t, DisplayState{}.CanRelease())
}
