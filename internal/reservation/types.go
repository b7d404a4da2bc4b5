package reservation

// IntentStatus classifies a locally tracked reservation intent.
type IntentStatus string

const (
	// PreReservedByMe marks a slot the current user holds a temporary
	// claim on, locally or as confirmed by a live event.
	PreReservedByMe IntentStatus = "pre_reserved_by_me"

	// PreReservedByOthers marks a slot another user has claimed.
	PreReservedByOthers IntentStatus = "pre_reserved_by_others"

	// Reserved marks a slot with a finalized reservation.
	Reserved IntentStatus = "reserved"
)

// Intent is one locally-known reservation fact for a slot. Entries are
// replaced wholesale on update: a later write always represents more
// current knowledge than an earlier one.
type Intent struct {
	Key      SlotKey
	DayLabel string
	Status   IntentStatus
	ByUserID *int64
}

// RawSlotAttributes is the slot state as reported by the last catalog
// fetch. It is read-only to this package and may be stale relative to
// local actions and live events.
type RawSlotAttributes struct {
	IsReserve         bool
	IsPreReserved     bool
	SelfReserved      bool
	PreReservedUserID *int64
}

// DisplayState is the user-facing state of one slot after reconciling the
// catalog snapshot with local overlays.
type DisplayState struct {
	IsPreReserved bool
	SelfReserved  bool
	IsReserve     bool
}

// CanLock reports whether the slot is open for a new pre-reservation.
func (s DisplayState) CanLock() bool {
	return !s.IsReserve && !s.IsPreReserved
}

// CanRelease reports whether the current user may release their own
// pre-reservation.
func (s DisplayState) CanRelease() bool {
	return s.IsPreReserved && s.SelfReserved && !s.IsReserve
}
