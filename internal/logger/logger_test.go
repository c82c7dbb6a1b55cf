package logger

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func capture(t *testing.T, lvl string) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prevLevel := level.Load()
	SetOutput(buf)
	SetLevel(lvl)
	t.Cleanup(func() {
		level.Store(prevLevel)
		SetOutput(bytes.NewBuffer(nil))
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug, "TRACE": LevelDebug, "info": LevelInfo,
		" warning ": LevelWarn, "error": LevelError, "": LevelInfo, "loud": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "warn")
	Infof("hidden %d", 1)
	Debugf("hidden too")
	Warnf("slow client %s", "u1")
	Errorf("boom")
	require.True(t, Sync(time.Second))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: slow client u1")
	assert.Contains(t, out, "ERROR: boom")
}

func TestLogDurationOnlySlowCallsAtInfo(t *testing.T) {
	buf := capture(t, "info")
	LogDuration("fast", time.Now())
	LogDuration("slow", time.Now().Add(-2*slowCall))
	require.True(t, Sync(time.Second))

	out := buf.String()
	assert.NotContains(t, out, "fn=fast")
	assert.Contains(t, out, "fn=slow")
}
