// Package reservation tracks locally-known group-class reservation state
// and reconciles it with catalog snapshots and live server events.
package reservation

import "fmt"

// SlotKey identifies one bookable (service, date, time-range) unit. It is
// a value type compared field-by-field and used directly as a map key.
type SlotKey struct {
	ServiceID int64
	Date      string // YYYY-MM-DD
	FromTime  string // HH:MM
	ToTime    string // HH:MM
}

// String renders the key for logs.
func (k SlotKey) String() string {
	return fmt.Sprintf("%d/%s %s-%s", k.ServiceID, k.Date, k.FromTime, k.ToTime)
}
