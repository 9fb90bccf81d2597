package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerWithCore(core)

	logger.Verbose("checkout %s", "abc")
	logger.Info("opened %d", 1)
	logger.Error("failed: %v", "boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "checkout abc", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "opened 1", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "failed: boom", entries[2].Message)
}

func TestZapLogger_VerboseSuppressedAtInfo(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewZapLoggerWithCore(core)

	logger.Verbose("hidden")
	logger.Info("shown")

	assert.Equal(t, 0, logs.FilterMessage("hidden").Len())
	assert.Equal(t, 1, logs.FilterMessage("shown").Len())
}

func TestZapLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerWithCore(core).Named("pool").With("fingerprint", "0a1b2c")

	logger.Info("checked out")

	entries := logs.FilterField(zap.String("fingerprint", "0a1b2c")).AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "pool", entries[0].LoggerName)
}

func TestZapLogger_NoArgsKeepsPercent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerWithCore(core)

	logger.Info("100%")

	assert.Equal(t, 1, logs.FilterMessage("100%").Len())
}

func TestZapLogger_ConcurrentUse(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerWithCore(core)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Info("message %d", i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, logs.Len())
}

func TestNullLogger(t *testing.T) {
	l := NewNullLogger()
	assert.NotPanics(t, func() {
		l.Verbose("x %d", 1)
		l.Info("y")
		l.Error("z")
	})
}

func TestNewZapLogger(t *testing.T) {
	assert.NotNil(t, NewZapLogger(true))
	assert.NotNil(t, NewZapLogger(false))
}
