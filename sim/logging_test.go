package sim

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockHook_StampsSimulatedTime(t *testing.T) {
	clock := 0.0
	hook := NewClockHook(func() float64 { return clock })

	entry := logrus.NewEntry(logrus.New())
	entry.Data = logrus.Fields{}
	require.NoError(t, hook.Fire(entry))
	assert.Equal(t, 0.0, entry.Data["t"])

	clock = 3.25
	require.NoError(t, hook.Fire(entry))
	assert.Equal(t, 3.25, entry.Data["t"])
}

func TestClockHook_AppliesToAllLevels(t *testing.T) {
	hook := NewClockHook(func() float64 { return 0 })
	assert.Equal(t, logrus.AllLevels, hook.Levels())
}

func TestClockHook_EndToEnd(t *testing.T) {
	s := newTestSimulation(t, testConfig())

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.AddHook(NewClockHook(s.Now))

	s.Clock = 7.5
	log.Info("checkpoint")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, 7.5, record["t"])
	assert.Equal(t, "checkpoint", record["msg"])
}
