package reservation

import (
	"sync"

	"github.com/class-reserve/client/internal/metrics"
)

// Store is the single source of truth for the active view's locally-known
// reservation intents and cancellation markers. All mutation is
// synchronous: a write is visible to the next Resolve call immediately.
// The coordinator is the only writer; the mutex exists because reads come
// from render passes that may run concurrently with event delivery.
type Store struct {
	mu        sync.RWMutex
	intents   map[SlotKey]Intent
	cancelled map[SlotKey]struct{}
	lastSeq   map[SlotKey]int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		intents:   make(map[SlotKey]Intent),
		cancelled: make(map[SlotKey]struct{}),
		lastSeq:   make(map[SlotKey]int64),
	}
}

// RecordIntent upserts the intent for key, replacing any existing entry
// wholesale. Recording an intent supersedes a cancellation marker for the
// same key.
func (s *Store) RecordIntent(key SlotKey, dayLabel string, status IntentStatus, byUserID *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[key] = Intent{
		Key:      key,
		DayLabel: dayLabel,
		Status:   status,
		ByUserID: byUserID,
	}
	delete(s.cancelled, key)
	metrics.ActiveIntents.Set(float64(len(s.intents)))
}

// RemoveIntent deletes any intent for key and marks the key cancelled in
// the same critical section, so no concurrent read can observe one change
// without the other. The marker suppresses a stale preReservedUserId still
// present in not-yet-refetched catalog data.
func (s *Store) RemoveIntent(key SlotKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, key)
	s.cancelled[key] = struct{}{}
	metrics.ActiveIntents.Set(float64(len(s.intents)))
}

// ClearCancellationMarker removes the marker for key. The catalog-refetch
// collaborator calls this once fresh data no longer reports the released
// lock; the store cannot observe that on its own.
func (s *Store) ClearCancellationMarker(key SlotKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, key)
}

// ClearAll empties the intent table, the marker set and the sequence
// bookkeeping. Called when the owning view unmounts or the user resets
// the booking flow.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = make(map[SlotKey]Intent)
	s.cancelled = make(map[SlotKey]struct{})
	s.lastSeq = make(map[SlotKey]int64)
	metrics.ActiveIntents.Set(0)
}

// Intent returns the tracked intent for key, if any.
func (s *Store) Intent(key SlotKey) (Intent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[key]
	return in, ok
}

// Cancelled reports whether key carries a cancellation marker.
func (s *Store) Cancelled(key SlotKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cancelled[key]
	return ok
}

// CancelledKeys returns a snapshot of all keys carrying a cancellation
// marker, for the refetch collaborator to reconcile against fresh data.
func (s *Store) CancelledKeys() []SlotKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]SlotKey, 0, len(s.cancelled))
	for k := range s.cancelled {
		keys = append(keys, k)
	}
	return keys
}

// AdmitSeq records seq as the newest sequence seen for key and reports
// whether an event carrying it should be applied. A zero seq always
// admits: not every backend stamps events, and legacy ordering semantics
// are last-write-wins. A non-zero seq at or below the last admitted one
// is a late arrival from a superseded connection and is rejected.
func (s *Store) AdmitSeq(key SlotKey, seq int64) bool {
	if seq == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq[key] {
		metrics.StaleEventsRejectedTotal.Inc()
		return false
	}
	s.lastSeq[key] = seq
	return true
}

// Resolve computes the display state for key from the given catalog
// snapshot and the store's local overlays. Read-only and O(1).
func (s *Store) Resolve(raw RawSlotAttributes, key SlotKey, currentUserID *int64) DisplayState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var intent *Intent
	if in, ok := s.intents[key]; ok {
		intent = &in
	}
	_, cancelled := s.cancelled[key]
	return Resolve(raw, intent, cancelled, currentUserID)
}

// Len returns the number of tracked intents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.intents)
}
