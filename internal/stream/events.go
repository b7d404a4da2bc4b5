package stream

import (
	"encoding/json"
)

// EventStatus classifies a normalized reservation push.
type EventStatus string

const (
	StatusReserved    EventStatus = "reserved"
	StatusPreReserved EventStatus = "pre-reserved"
	StatusCancelled   EventStatus = "cancelled"
	StatusLocked      EventStatus = "locked"
)

// LiveEvent is a normalized reservation push from the server. It is
// ephemeral: consumed once by the coordinator and folded into local state,
// never stored verbatim.
type LiveEvent struct {
	ServiceID    int64       `json:"serviceId"`
	Date         string      `json:"date,omitempty"`
	SpecificDate string      `json:"specificDate,omitempty"`
	FromTime     string      `json:"fromTime"`
	ToTime       string      `json:"toTime"`
	ByUserID     *int64      `json:"byUserId,omitempty"`
	Status       EventStatus `json:"status,omitempty"`
	IsLocked     *bool       `json:"isLocked,omitempty"`
	DayLabel     string      `json:"dayLabel,omitempty"`

	// Seq is a server-side monotonic sequence number. Zero means the
	// backend did not supply one; such events are always admitted.
	Seq int64 `json:"seq,omitempty"`
}

// EffectiveDate returns the calendar date of the event. Older backends
// populate specificDate instead of date.
func (e LiveEvent) EffectiveDate() string {
	if e.Date != "" {
		return e.Date
	}
	return e.SpecificDate
}

// envelope is the raw wire frame carried over the websocket.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// reservationEventNames maps every wire event name the backend has ever
// used for reservation updates to the single normalized handling path.
// Names not in this table are ignored, not treated as errors.
var reservationEventNames = map[string]bool{
	"reservation.updated": true, // current name
	"reservationUpdated":  true,
	"reserveGroupSession": true,
	"groupSessionReserve": true,
	"preReserveUpdate":    true,
}

// MarshalFrame wraps ev in the current wire envelope. Used by the
// development server and tests; the real backend produces the same shape.
func MarshalFrame(ev LiveEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: "reservation.updated", Payload: payload})
}

// normalize decodes one wire frame into a LiveEvent. The second return is
// false when the frame should be dropped: unknown event name, undecodable
// payload, or a payload missing required fields.
func normalize(raw []byte) (LiveEvent, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LiveEvent{}, false
	}
	if !reservationEventNames[env.Event] {
		return LiveEvent{}, false
	}

	var ev LiveEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return LiveEvent{}, false
	}
	if ev.ServiceID == 0 || ev.FromTime == "" || ev.ToTime == "" || ev.EffectiveDate() == "" {
		return LiveEvent{}, false
	}

	// Legacy payloads carry a bare isLocked flag instead of a status.
	if ev.Status == "" {
		if ev.IsLocked == nil {
			return LiveEvent{}, false
		}
		if *ev.IsLocked {
			ev.Status = StatusLocked
		} else {
			ev.Status = StatusCancelled
		}
	}

	switch ev.Status {
	case StatusReserved, StatusPreReserved, StatusCancelled, StatusLocked:
		return ev, true
	default:
		return LiveEvent{}, false
	}
}
