package serialport

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame(t *testing.T) {
	port := NewTestableSerialPort()
	frame := []byte{0x11, 0xA2, 0x80}

	require.NoError(t, WriteFrame(port, frame))
	assert.Equal(t, frame, port.GetWrittenData())

	port.ShortWrite = true
	assert.ErrorIs(t, WriteFrame(port, frame), ErrWriteFailed)

	port.ShortWrite = false
	port.WriteError = errors.New("device gone")
	assert.Error(t, WriteFrame(port, frame))
}

func TestTestableSerialPort_Reads(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{1, 2, 3})

	buf := make([]byte, 8)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	_, err = port.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTestableSerialPort_CloseWakesBlockedReader(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked read was not released by Close")
	}
}

func TestTestableSerialPort_SetReadTimeout(t *testing.T) {
	var p TimeoutSerialPorter = NewTestableSerialPort()
	require.NoError(t, p.SetReadTimeout(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, p.(*TestableSerialPort).ReadTimeout)
}
