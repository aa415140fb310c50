package door

import (
	"context"
	"encoding/binary"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// BluetoothSource scans for BLE advertisements on the host adapter.
type BluetoothSource struct {
	adapter *bluetooth.Adapter
}

// NewBluetoothSource uses the default adapter.
func NewBluetoothSource() *BluetoothSource {
	return &BluetoothSource{adapter: bluetooth.DefaultAdapter}
}

// Scan enables the adapter and reports every manufacturer-data element as an
// advertisement whose payload is prefixed with the little-endian company ID,
// matching the on-air layout.
func (b *BluetoothSource) Scan(ctx context.Context, fn func(Advertisement)) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.adapter.StopScan()
		case <-done:
		}
	}()

	err := b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		for _, md := range result.ManufacturerData() {
			data := make([]byte, 2+len(md.Data))
			binary.LittleEndian.PutUint16(data, md.CompanyID)
			copy(data[2:], md.Data)
			fn(Advertisement{Address: addr, ManufacturerData: data})
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("bluetooth scan: %w", err)
	}
	return nil
}
