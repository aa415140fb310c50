package serialport

import (
	"bytes"
	"sync"
	"time"
)

// TestableSerialPort implements SerialPorter over in-memory buffers. Dev mode
// feeds it synthetic radar frames; tests use it to script reads and capture
// writes.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// BlockReads makes Read wait for data instead of returning io.EOF.
	BlockReads bool
	// ReadError and WriteError are returned once by the next call.
	ReadError  error
	WriteError error
	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool

	ReadTimeout time.Duration
	closed      bool
}

// NewTestableSerialPort creates an empty port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns buffered data, io.EOF when empty, or blocks when BlockReads is set.
func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	if p.BlockReads {
		for !p.closed && p.readBuf.Len() == 0 {
			p.readCond.Wait()
		}
		if p.closed {
			return 0, ErrPortClosed
		}
	}
	return p.readBuf.Read(b)
}

// Write captures b.
func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	if p.ShortWrite && len(b) > 0 {
		p.writeBuf.Write(b[:len(b)-1])
		return len(b) - 1, nil
	}
	return p.writeBuf.Write(b)
}

// Close wakes blocked readers; later reads and writes fail with ErrPortClosed.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadTimeout = timeout
	return nil
}

// AddReadData queues data for subsequent reads.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.readCond.Signal()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}
