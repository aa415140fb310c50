package door

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAdvertisement(t *testing.T) {
	ev, err := DecodeAdvertisement([]byte{0x59, 0x00, 0x01, 0x02, 0x03, 0x0A, 0x7F})
	require.NoError(t, err)
	assert.Equal(t, Event{Status: 0x0A, Sequence: 0x7F}, ev)
	assert.True(t, ev.Open())

	_, err = DecodeAdvertisement([]byte{0x59, 0x00, 0x01})
	assert.True(t, errors.Is(err, ErrShortPayload))
}

func TestStatusPredicates(t *testing.T) {
	for s := 0; s < 256; s++ {
		status := byte(s)
		if got, want := IsOpen(status), status&0x02 != 0; got != want {
			t.Errorf("IsOpen(%#02x) = %v, want %v", status, got, want)
		}
		if got, want := IsUnknown(status), status == 0x99; got != want {
			t.Errorf("IsUnknown(%#02x) = %v, want %v", status, got, want)
		}
	}
	assert.True(t, UnknownEvent.Unknown())
	assert.False(t, UnknownEvent.Closed())
	assert.True(t, Event{Status: StatusHeartbeat}.Closed())
}

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		in      string
		want    DeviceID
		wantErr bool
	}{
		{"AA,BB,CC", DeviceID{0xAA, 0xBB, 0xCC}, false},
		{"1a:2b:3c", DeviceID{0x1A, 0x2B, 0x3C}, false},
		{" 01, 02, 03 ", DeviceID{1, 2, 3}, false},
		{"AA,BB", DeviceID{}, true},
		{"AA,BB,GG", DeviceID{}, true},
		{"100,00,00", DeviceID{}, true},
		{"", DeviceID{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDeviceID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDeviceID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceIDAddresses(t *testing.T) {
	id := DeviceID{0x12, 0x34, 0x56}
	assert.Equal(t, "12,34,56", id.String())
	assert.Equal(t, uint32(0x123456), id.Uint())
	assert.Equal(t, []string{
		"B8:7C:6F:12:34:56",
		"8C:9A:22:12:34:56",
		"AC:9A:22:12:34:56",
		"80:FB:F1:12:34:56",
	}, id.Addresses())
	assert.True(t, id.Matches("ac:9a:22:12:34:56"))
	assert.False(t, id.Matches("AC:9A:22:12:34:57"))
}
