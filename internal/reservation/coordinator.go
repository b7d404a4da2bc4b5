package reservation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/stream"
)

// Coordinator wires the event stream client into the reservation store and
// exposes the slot-state contract consumed by the rendering layer. It owns
// the stream connection for its lifetime: construct on mount, Shutdown on
// unmount. No error from the coordinator reaches the caller; every failure
// mode degrades to a missing live update.
type Coordinator struct {
	store  *Store
	stream *stream.Client
	log    *zap.Logger

	mu            sync.Mutex
	currentUserID *int64
	creds         stream.Credentials
	started       bool
	onChange      func(SlotKey)
}

// NewCoordinator builds a coordinator around the given stream client. A
// nil client is allowed and leaves the coordinator in catalog-only mode.
func NewCoordinator(sc *stream.Client, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		store:  NewStore(),
		stream: sc,
		log:    log,
	}
	if sc != nil {
		sc.OnEvent(c.HandleLiveEvent)
	}
	return c
}

// LiveUpdates reports whether a streaming transport is available. When
// false, slot states come from catalog snapshots alone.
func (c *Coordinator) LiveUpdates() bool {
	return c.stream != nil && c.stream.IsSupported()
}

// Start records the current identity and opens the event channel. Calling
// it again with a different user or channel key tears the connection down
// and reconnects; calling it with the same identity is a no-op.
func (c *Coordinator) Start(creds stream.Credentials, currentUserID int64) {
	c.mu.Lock()
	sameIdentity := c.started &&
		c.currentUserID != nil && *c.currentUserID == currentUserID &&
		c.creds == creds
	uid := currentUserID
	c.currentUserID = &uid
	c.creds = creds
	restart := c.started && !sameIdentity
	c.started = true
	c.mu.Unlock()

	if sameIdentity {
		return
	}
	if c.stream == nil {
		return
	}
	if restart {
		c.log.Info("identity changed, reconnecting event channel",
			zap.Int64("user_id", currentUserID))
		c.stream.Disconnect()
	}
	c.stream.Connect(creds)
}

// OnChange registers a callback invoked with the affected key after every
// state mutation. Last registration wins; nil unregisters.
func (c *Coordinator) OnChange(fn func(SlotKey)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SlotState resolves the display state for one rendered slot. Called once
// per slot per render pass; O(1) and side-effect free.
func (c *Coordinator) SlotState(raw RawSlotAttributes, key SlotKey) DisplayState {
	c.mu.Lock()
	uid := c.currentUserID
	c.mu.Unlock()
	return c.store.Resolve(raw, key, uid)
}

// Lock optimistically records a pre-reservation by the current user before
// any server round-trip completes. The caller still issues the booking API
// request and follows up with Unlock or ConfirmReserved on the response.
func (c *Coordinator) Lock(key SlotKey, dayLabel string) {
	c.mu.Lock()
	uid := c.currentUserID
	c.mu.Unlock()

	c.store.RecordIntent(key, dayLabel, PreReservedByMe, uid)
	c.log.Debug("slot locked locally", zap.Stringer("slot", key))
	c.notify(key)
}

// Unlock releases a previously recorded intent and marks the key
// cancelled so stale catalog data cannot resurrect the lock.
func (c *Coordinator) Unlock(key SlotKey) {
	c.store.RemoveIntent(key)
	c.log.Debug("slot released locally", zap.Stringer("slot", key))
	c.notify(key)
}

// ConfirmReserved records a finalized reservation for key, typically after
// the booking API confirms.
func (c *Coordinator) ConfirmReserved(key SlotKey, dayLabel string) {
	c.mu.Lock()
	uid := c.currentUserID
	c.mu.Unlock()

	c.store.RecordIntent(key, dayLabel, Reserved, uid)
	c.notify(key)
}

// ClearCancellationMarker drops the stale-data marker for key. The catalog
// collaborator calls this once a refetch confirms the server no longer
// reports the released lock.
func (c *Coordinator) ClearCancellationMarker(key SlotKey) {
	c.store.ClearCancellationMarker(key)
}

// CancelledKeys lists the keys currently carrying cancellation markers.
func (c *Coordinator) CancelledKeys() []SlotKey {
	return c.store.CancelledKeys()
}

// HandleLiveEvent folds one normalized server push into the store. Invoked
// serially by the stream client in arrival order; also callable directly
// by hosts that receive events through another path.
func (c *Coordinator) HandleLiveEvent(ev stream.LiveEvent) {
	key := SlotKey{
		ServiceID: ev.ServiceID,
		Date:      ev.EffectiveDate(),
		FromTime:  ev.FromTime,
		ToTime:    ev.ToTime,
	}
	if key.ServiceID == 0 || key.Date == "" || key.FromTime == "" || key.ToTime == "" {
		c.log.Debug("dropping event with incomplete slot identity")
		return
	}

	if !c.store.AdmitSeq(key, ev.Seq) {
		c.log.Debug("dropping stale event",
			zap.Stringer("slot", key), zap.Int64("seq", ev.Seq))
		return
	}

	c.mu.Lock()
	uid := c.currentUserID
	c.mu.Unlock()

	switch ev.Status {
	case stream.StatusCancelled:
		c.store.RemoveIntent(key)
	case stream.StatusReserved:
		c.store.RecordIntent(key, ev.DayLabel, Reserved, ev.ByUserID)
	case stream.StatusPreReserved, stream.StatusLocked:
		status := PreReservedByOthers
		if ev.ByUserID != nil && uid != nil && *ev.ByUserID == *uid {
			status = PreReservedByMe
		}
		c.store.RecordIntent(key, ev.DayLabel, status, ev.ByUserID)
	default:
		c.log.Debug("ignoring event with unknown status",
			zap.String("status", string(ev.Status)))
		return
	}
	c.notify(key)
}

// Reset empties all locally tracked state while keeping the connection.
// Call when the user completes or abandons the booking flow.
func (c *Coordinator) Reset() {
	c.store.ClearAll()
}

// Shutdown clears all state and tears down the event channel. Call on
// unmount or logout so stale intents cannot leak into the next view.
func (c *Coordinator) Shutdown() {
	c.store.ClearAll()
	if c.stream != nil {
		c.stream.Disconnect()
	}
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

func (c *Coordinator) notify(key SlotKey) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(key)
	}
}
