package samlog

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/neehar-mavuduru/logring/logring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2ms after boot.
const testNanos = 2_000_000

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RingSize = 4096
	cfg.SpareSize = 512
	cfg.DoubleBufferSize = 1024
	cfg.PrependHeader = false
	return cfg
}

func newTestLogger(t *testing.T, cfg Config) *Logger {
	t.Helper()
	l, err := New("test", cfg,
		WithSlog(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRingOptions(logring.WithClock(func() int64 { return testNanos })),
	)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// readAll drains a session through a deliberately small slice.
func readAll(t *testing.T, s *Session) string {
	t.Helper()
	var sb strings.Builder
	p := make([]byte, 7)
	for {
		n, err := s.Read(p)
		sb.Write(p[:n])
		if errors.Is(err, io.EOF) {
			return sb.String()
		}
		require.NoError(t, err)
	}
}

func drain(t *testing.T, l *Logger) string {
	t.Helper()
	s, err := l.OpenSession(SessionOptions{})
	require.NoError(t, err)
	defer s.Close()
	return readAll(t, s)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RingSize = 5000
	_, err := New("bad", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_PrintfWithHeader(t *testing.T) {
	cfg := testConfig()
	cfg.PrependHeader = true
	l := newTestLogger(t, cfg)

	n := l.Printf(logring.TagMIF, LevelInfo, "x=%d\n", 3)
	want := "<6>[     0.002000] [c0] [P] [mif] :: x=3\n"
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, drain(t, l))
	assert.Same(t, l, l.Ring().Owner)
}

func TestLogger_DropLevels(t *testing.T) {
	cfg := testConfig()
	cfg.DropLevels = map[string]int{
		DefaultDropKey: int(LevelWarning),
		"mxman":        -1,
		"mif":          int(LevelDebug),
	}
	l := newTestLogger(t, cfg)

	assert.Equal(t, 0, l.Print(logring.TagWLBT, LevelInfo, "quiet\n"))
	assert.Equal(t, 5, l.Print(logring.TagWLBT, LevelErr, "loud\n"))
	assert.Equal(t, 0, l.Print(logring.TagMxMan, LevelEmerg, "silenced\n"))
	assert.Equal(t, 6, l.Print(logring.TagMIF, LevelDebug, "debug\n"))

	assert.Equal(t, "loud\ndebug\n", drain(t, l))

	st := l.Stats()
	assert.Equal(t, int64(2), st.TotalLogs)
	assert.Equal(t, int64(2), st.FilteredLogs)
	assert.Equal(t, int64(0), st.DroppedLogs)
	assert.Equal(t, int64(11), st.BytesWritten)
	assert.Equal(t, 2, st.Records)
}

func TestLogger_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enable = false
	l := newTestLogger(t, cfg)

	assert.False(t, l.Enabled())
	assert.Equal(t, 0, l.Print(logring.TagMIF, LevelInfo, "off\n"))
	assert.Equal(t, 0, l.PrintBin(logring.TagBinary, LevelInfo, []byte{1}))

	l.SetEnabled(true)
	assert.Equal(t, 3, l.Print(logring.TagMIF, LevelInfo, "on\n"))
	assert.Equal(t, "on\n", drain(t, l))
	assert.Equal(t, int64(2), l.Stats().FilteredLogs)
}

func TestLogger_TooLongLineIsDropped(t *testing.T) {
	l := newTestLogger(t, testConfig())

	assert.Equal(t, 0, l.Print(logring.TagMIF, LevelInfo, strings.Repeat("z", 600)))
	st := l.Stats()
	assert.Equal(t, int64(1), st.DroppedLogs)
	assert.Equal(t, 0, st.Records)
}

func TestLogger_PrintBin(t *testing.T) {
	cfg := testConfig()
	cfg.PrependHeader = true
	cfg.BinaryDecodeLen = 4
	l := newTestLogger(t, cfg)

	n := l.PrintBin(logring.TagBinWifiDataTx, LevelDebug, []byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	assert.Equal(t, 5, n)
	assert.Equal(t, "<7>[     0.002000] [c0] [P] [bin_wifi_data_tx] :: HEX[4/5]:efbeadde\n", drain(t, l))
}

func TestLogger_InjectIgnoresDropLevels(t *testing.T) {
	cfg := testConfig()
	cfg.DropLevels = map[string]int{DefaultDropKey: -1}
	l := newTestLogger(t, cfg)

	assert.Equal(t, 0, l.Print(logring.TagMIF, LevelEmerg, "filtered\n"))
	assert.Equal(t, 6, l.Inject("hello\n"))

	n, err := l.Write([]byte("written\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = l.Write([]byte(strings.Repeat("y", 600)))
	assert.ErrorIs(t, err, ErrDropped)

	assert.Equal(t, "hello\nwritten\n", drain(t, l))
}

func TestLogger_Truncate(t *testing.T) {
	l := newTestLogger(t, testConfig())
	l.Print(logring.TagMIF, LevelInfo, "gone\n")
	l.Truncate()

	assert.Equal(t, "", drain(t, l))
	assert.Equal(t, 0, l.Stats().Records)
}

func TestLogger_Close(t *testing.T) {
	l := newTestLogger(t, testConfig())
	l.Print(logring.TagMIF, LevelInfo, "bye\n")

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Equal(t, 0, l.Print(logring.TagMIF, LevelInfo, "late\n"))
	assert.Equal(t, 0, l.Inject("late"))

	_, err := l.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = l.OpenSession(SessionOptions{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = l.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 0, l.Stats().Records)
}
