package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/helmd/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampledObserver(levels map[zapcore.Level]LevelSamplingConfig) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  levels,
	})
	return zap.New(sampled), logs
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	logger, logs := sampledObserver(DefaultLevelSamplingConfig())

	for i := 0; i < 500; i++ {
		logger.Error("boom")
	}
	assert.Equal(t, 500, logs.FilterMessage("boom").Len())
}

func TestSampling_PerLevelRates(t *testing.T) {
	logger, logs := sampledObserver(map[zapcore.Level]LevelSamplingConfig{
		zapcore.DebugLevel: {Initial: 2, Thereafter: 0},
		zapcore.InfoLevel:  {Initial: 5, Thereafter: 10},
	})

	for i := 0; i < 25; i++ {
		logger.Debug("debug")
		logger.Info("info")
		logger.Warn("warn")
	}

	assert.Equal(t, 2, logs.FilterMessage("debug").Len())
	// 5 initial, then every 10th of the remaining 20.
	assert.Equal(t, 7, logs.FilterMessage("info").Len())
	assert.Equal(t, 25, logs.FilterMessage("warn").Len(), "levels without a rate are not sampled")
}

func TestSampling_RatesAreIndependentPerLevel(t *testing.T) {
	logger, logs := sampledObserver(map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
		zapcore.WarnLevel: {Initial: 3, Thereafter: 0},
	})

	for i := 0; i < 5; i++ {
		logger.Info("same")
		logger.Warn("same")
	}

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 3, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestSampling_Disabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(core, SamplingConfig{Enabled: false}))

	for i := 0; i < 300; i++ {
		logger.Info("all")
	}
	assert.Equal(t, 300, logs.Len())
}

func TestLevelFilterCore(t *testing.T) {
	core, logs := observer.New(TraceLevel)
	only := &levelFilterCore{Core: core, min: zapcore.InfoLevel, max: zapcore.InfoLevel}
	logger := zap.New(only).With(zap.String("k", "v"))

	logger.Debug("no")
	logger.Info("yes")
	logger.Warn("no")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "v", logs.All()[0].ContextMap()["k"])
	assert.True(t, only.Enabled(zapcore.InfoLevel))
	assert.False(t, only.Enabled(zapcore.ErrorLevel))
}
