package reservation

// Resolve converts a slot's raw catalog attributes plus the local overlays
// into its display state. Precedence, first match wins:
//
//  1. A local intent exists for the key. Local knowledge is always more
//     recent than the last catalog fetch, so it overrides the snapshot.
//  2. The key carries a cancellation marker. The user released the slot
//     after the snapshot was taken; any preReservedUserId the snapshot
//     still reports is presumed stale and ignored.
//  3. Neither local signal: trust the snapshot, augmented by an identity
//     check. A preReservedUserId matching the current user counts as
//     self-reserved even when the snapshot's booleans disagree, because
//     the user id is the more authoritative signal.
func Resolve(raw RawSlotAttributes, intent *Intent, cancelled bool, currentUserID *int64) DisplayState {
	if intent != nil {
		switch intent.Status {
		case PreReservedByMe:
			return DisplayState{IsPreReserved: true, SelfReserved: true}
		case PreReservedByOthers:
			return DisplayState{IsPreReserved: true}
		case Reserved:
			return DisplayState{IsReserve: true}
		}
	}

	if cancelled {
		return DisplayState{IsReserve: raw.IsReserve}
	}

	mine := raw.PreReservedUserID != nil && currentUserID != nil &&
		*raw.PreReservedUserID == *currentUserID
	return DisplayState{
		IsPreReserved: raw.IsPreReserved || mine,
		SelfReserved:  raw.SelfReserved || mine,
		IsReserve:     raw.IsReserve,
	}
}
