package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	require.NotEqual(t, id1, id2, "subscriber IDs must be unique")

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "channel should be closed after Unsubscribe")

	// unknown IDs are ignored
	mux.Unsubscribe("does-not-exist")
	mux.Unsubscribe(id1)
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("RATE=10"))
	require.NoError(t, mux.SendCommand("START\n"))
	assert.Equal(t, "RATE=10\nSTART\n", string(port.GetWrittenData()))
}

func TestSendCommandWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("boom")
	mux := NewSerialMux(port)

	err := mux.SendCommand("STOP")
	assert.EqualError(t, err, "boom")
}

type shortWritePort struct{ *TestableSerialPort }

func (p shortWritePort) Write(b []byte) (int, error) { return len(b) - 1, nil }

func TestSendCommandShortWrite(t *testing.T) {
	mux := NewSerialMux(shortWritePort{NewTestableSerialPort()})
	assert.ErrorIs(t, mux.SendCommand("STOP"), ErrWriteFailed)
}

func TestInitCommands(t *testing.T) {
	tests := []struct {
		interval time.Duration
		rate     string
	}{
		{100 * time.Millisecond, "RATE=10"},
		{20 * time.Millisecond, "RATE=50"},
		{time.Second, "RATE=1"},
		{3 * time.Second, "RATE=1"},
		{0, "RATE=1"},
	}
	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			want := []string{"STOP", "UNITS=G", "FMT=CSV", tt.rate, "START"}
			if diff := cmp.Diff(want, InitCommands(tt.interval)); diff != "" {
				t.Errorf("InitCommands() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInitialise(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.Initialise(100*time.Millisecond))
	assert.Equal(t, "STOP\nUNITS=G\nFMT=CSV\nRATE=10\nSTART\n", string(port.GetWrittenData()))
}

func TestInitialiseStopsOnError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("unplugged")
	mux := NewSerialMux(port)

	err := mux.Initialise(100 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"STOP"`)
	assert.Equal(t, 1, port.WriteCalls)
}

func TestMonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("0.01,0.02,0.98\r\n\nOK RATE=10\n"))
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	// the buffer drains to io.EOF, which ends Monitor cleanly
	require.NoError(t, mux.Monitor(context.Background()))

	want := []string{"0.01,0.02,0.98", "OK RATE=10"}
	for _, ch := range []chan string{a, b} {
		var got []string
		for len(ch) > 0 {
			got = append(got, <-ch)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("subscriber lines mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestMonitorCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
}

func TestMonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("device reset")
	mux := NewSerialMux(port)

	err := mux.Monitor(context.Background())
	assert.EqualError(t, err, "device reset")
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed)
}

func TestMockSerialMuxStreamsFixture(t *testing.T) {
	mux := NewMockSerialMux([]byte("0.1,0.2,0.9\n\n0.0,0.0,1.0\n"), time.Millisecond)
	defer mux.Close()

	_, ch := mux.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case line := <-ch:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out after %d lines", len(got))
		}
	}
	assert.Equal(t, []string{"0.1,0.2,0.9", "0.0,0.0,1.0", "0.1,0.2,0.9"}, got)

	require.NoError(t, mux.Initialise(100*time.Millisecond))
	assert.True(t, strings.HasPrefix(mux.port.Written(), "STOP\n"))
}

func TestNewSerialMuxWith(t *testing.T) {
	var gotPath string
	var gotOpts PortOptions
	port := NewTestableSerialPort()
	open := func(path string, opts PortOptions) (SerialPorter, error) {
		gotPath, gotOpts = path, opts
		return port, nil
	}

	mux, err := NewSerialMuxWith(open, "/dev/ttyACM0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	require.NotNil(t, mux)
	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, "9600 8N1", gotOpts.String())

	_, err = NewSerialMuxWith(open, "", PortOptions{})
	assert.Error(t, err)

	failing := func(string, PortOptions) (SerialPorter, error) { return nil, errors.New("no such device") }
	_, err = NewSerialMuxWith(failing, "/dev/null", PortOptions{})
	assert.ErrorContains(t, err, "no such device")
}
