package enums

import "fmt"

// ReservationStatus describes the allowed values for the `status` column in reservations.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusConfirmed,
	ReservationStatusCancelled,
	ReservationStatusExpired,
}

// IsValid reports whether the value matches the canonical reservation status enum.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// ParseReservationStatus converts the raw string to ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
