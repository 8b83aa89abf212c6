package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/momentics/rpcengine/config"
)

func TestNewDefaultsToInfoLevelOnEmptyLevel(t *testing.T) {
	log := New(config.Logging{})
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewDefaultsToInfoLevelOnUnrecognizedLevel(t *testing.T) {
	log := New(config.Logging{Level: "not-a-real-level"})
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewHonorsExplicitLevel(t *testing.T) {
	log := New(config.Logging{Level: "warn"})
	require.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestSampledWithNLessOrEqualOneReturnsBaseUnchanged(t *testing.T) {
	base := New(config.Logging{Level: "debug"})
	sampled := Sampled(base, 1)
	require.Equal(t, base.GetLevel(), sampled.GetLevel())
}

func TestSampledWithNGreaterThanOneAppliesSampler(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.DebugLevel)
	sampled := Sampled(base, 10)
	require.Equal(t, base.GetLevel(), sampled.GetLevel())
	for i := 0; i < 10; i++ {
		sampled.Debug().Msg("frame")
	}
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}
