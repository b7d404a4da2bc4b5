package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() SlotKey {
	return SlotKey{ServiceID: 1, Date: "2025-01-10", FromTime: "10:00", ToTime: "11:00"}
}

func TestStoreLastWriteWins(t *testing.T) {
	s := NewStore()
	key := testKey()

	s.RecordIntent(key, "Friday", PreReservedByMe, i64(7))
	s.RecordIntent(key, "Friday", Reserved, i64(7))

	got := s.Resolve(RawSlotAttributes{}, key, i64(7))
	assert.True(t, got.IsReserve)
	assert.False(t, got.IsPreReserved)

	in, ok := s.Intent(key)
	require.True(t, ok)
	assert.Equal(t, Reserved, in.Status)
}

func TestStoreCancellationOverridesStaleSnapshot(t *testing.T) {
	s := NewStore()
	key := testKey()
	raw := RawSlotAttributes{PreReservedUserID: i64(7)}

	s.RecordIntent(key, "Friday", PreReservedByMe, i64(7))
	s.RemoveIntent(key)

	got := s.Resolve(raw, key, i64(7))
	assert.False(t, got.IsPreReserved)
	assert.False(t, got.SelfReserved)
	assert.True(t, s.Cancelled(key))
}

func TestStoreMarkerClearsCorrectly(t *testing.T) {
	s := NewStore()
	key := testKey()
	raw := RawSlotAttributes{PreReservedUserID: i64(7)}

	s.RemoveIntent(key)
	s.ClearCancellationMarker(key)

	// Resolution falls through to the raw snapshot unmodified.
	got := s.Resolve(raw, key, i64(7))
	assert.True(t, got.IsPreReserved)
	assert.True(t, got.SelfReserved)
	assert.False(t, s.Cancelled(key))
}

func TestStoreNewIntentSupersedesMarker(t *testing.T) {
	s := NewStore()
	key := testKey()

	s.RemoveIntent(key)
	require.True(t, s.Cancelled(key))

	s.RecordIntent(key, "Friday", PreReservedByOthers, i64(9))
	assert.False(t, s.Cancelled(key))
}

func TestStoreClearAll(t *testing.T) {
	s := NewStore()
	a := testKey()
	b := SlotKey{ServiceID: 2, Date: "2025-01-11", FromTime: "12:00", ToTime: "13:00"}

	s.RecordIntent(a, "Friday", PreReservedByMe, i64(7))
	s.RemoveIntent(b)
	require.Equal(t, 1, s.Len())

	s.ClearAll()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Cancelled(b))
	assert.Empty(t, s.CancelledKeys())

	// Sequence bookkeeping resets too: an old seq admits again.
	assert.True(t, s.AdmitSeq(a, 1))
}

func TestStoreCancelledKeys(t *testing.T) {
	s := NewStore()
	key := testKey()
	s.RemoveIntent(key)

	keys := s.CancelledKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, key, keys[0])
}

func TestStoreAdmitSeq(t *testing.T) {
	s := NewStore()
	key := testKey()

	// Unstamped events always admit.
	assert.True(t, s.AdmitSeq(key, 0))
	assert.True(t, s.AdmitSeq(key, 0))

	assert.True(t, s.AdmitSeq(key, 5))
	assert.False(t, s.AdmitSeq(key, 5), "replay of the same seq must be rejected")
	assert.False(t, s.AdmitSeq(key, 3), "late event from a superseded connection must be rejected")
	assert.True(t, s.AdmitSeq(key, 6))

	// Per-key isolation.
	other := SlotKey{ServiceID: 2, Date: "2025-01-10", FromTime: "10:00", ToTime: "11:00"}
	assert.True(t, s.AdmitSeq(other, 1))
}
