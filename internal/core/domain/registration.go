package domain

import (
	"time"

	"github.com/google/uuid"
)

// PassRegistration is one (device, pass type, serial) subscription from the
// external wallet platform. Uniquely keyed on that triple; deregistration is
// a soft delete so re-registration stays an upsert.
type PassRegistration struct {
	ID              uuid.UUID `json:"id"`
	WalletID        uuid.UUID `json:"wallet_id"`
	DeviceLibraryID string    `json:"device_library_id"`
	PassTypeID      string    `json:"pass_type_id"`
	SerialNumber    string    `json:"serial_number"`
	PushToken       string    `json:"push_token"`
	Active          bool      `json:"active"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}
