// Package door receives the wireless door-contact sensor's advertisements and
// tracks the door's state and the integrity of its event stream.
package door

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Status bits of the door sensor's status byte.
const (
	StatusTamper     byte = 0x01
	StatusOpen       byte = 0x02
	StatusLowBattery byte = 0x04
	StatusHeartbeat  byte = 0x08

	// StatusUnknown is the sentinel held before any event has been received.
	StatusUnknown byte = 0x99
)

// Offsets into the manufacturer data, counting the two company-ID bytes.
const (
	statusOffset   = 5
	sequenceOffset = 6
)

var (
	// ErrShortPayload is returned for manufacturer data too short to carry
	// the status and sequence bytes.
	ErrShortPayload = errors.New("door advertisement payload too short")
	// ErrInvalidDeviceID is returned when a device ID cannot be parsed.
	ErrInvalidDeviceID = errors.New("invalid door device id")
)

// Event is one decoded door sensor report.
type Event struct {
	Status    byte   `json:"status"`
	Sequence  byte   `json:"sequence"`
	Timestamp uint32 `json:"timestamp"`
}

// UnknownEvent is the event reported before the first reception.
var UnknownEvent = Event{Status: StatusUnknown, Sequence: StatusUnknown}

// Open reports whether the status says the door is open.
func (e Event) Open() bool { return IsOpen(e.Status) }

// Unknown reports whether no event has been received yet.
func (e Event) Unknown() bool { return IsUnknown(e.Status) }

// Closed reports a known, closed door.
func (e Event) Closed() bool { return !e.Unknown() && !e.Open() }

// IsOpen reports whether status has the open bit set.
func IsOpen(status byte) bool { return status&StatusOpen != 0 }

// IsUnknown reports whether status is the not-yet-received sentinel.
func IsUnknown(status byte) bool { return status == StatusUnknown }

// DecodeAdvertisement extracts an event from manufacturer data, which starts
// with the little-endian company ID.
func DecodeAdvertisement(data []byte) (Event, error) {
	if len(data) <= sequenceOffset {
		return Event{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(data))
	}
	return Event{Status: data[statusOffset], Sequence: data[sequenceOffset]}, nil
}

// DeviceID is the last three octets of the sensor's address, most
// significant first.
type DeviceID [3]byte

// DefaultDeviceID is seeded into the store on first boot.
var DefaultDeviceID = DeviceID{0xAA, 0xAA, 0xAA}

// vendorPrefixes are the address prefixes the sensor ships with.
var vendorPrefixes = []string{"B8:7C:6F", "8C:9A:22", "AC:9A:22", "80:FB:F1"}

// ParseDeviceID parses "AA,BB,CC" (hex octets, comma or colon separated).
func ParseDeviceID(s string) (DeviceID, error) {
	var id DeviceID
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ',' || r == ':' })
	if len(parts) != len(id) {
		return id, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}
	for n, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 16, 8)
		if err != nil {
			return id, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
		}
		id[n] = byte(v)
	}
	return id, nil
}

// String renders the ID as "AA,BB,CC".
func (id DeviceID) String() string {
	return fmt.Sprintf("%02X,%02X,%02X", id[0], id[1], id[2])
}

// Uint returns the ID as a 24-bit integer.
func (id DeviceID) Uint() uint32 {
	return uint32(id[0])<<16 | uint32(id[1])<<8 | uint32(id[2])
}

// Addresses returns every address the sensor may advertise from.
func (id DeviceID) Addresses() []string {
	out := make([]string, len(vendorPrefixes))
	for n, p := range vendorPrefixes {
		out[n] = fmt.Sprintf("%s:%02X:%02X:%02X", p, id[0], id[1], id[2])
	}
	return out
}

// Matches reports whether addr is one of the sensor's addresses.
func (id DeviceID) Matches(addr string) bool {
	for _, a := range id.Addresses() {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}
