package thermal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func writeSensor(t *testing.T, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o644))
	return path
}

func TestNormalizeSensorValue(t *testing.T) {
	assert.Equal(t, 38.5, normalizeSensorValue(38500)) // millidegrees
	assert.Equal(t, 38.5, normalizeSensorValue(385))   // decidegrees
	assert.Equal(t, 38.0, normalizeSensorValue(38))    // plain degrees
}

func TestSafeBelowThrottle(t *testing.T) {
	sensor := writeSensor(t, "36500")
	m := NewSysfsMonitor(42.0, 30*time.Second, []string{sensor}, 35.0, testLogger())

	st := m.Status()
	assert.True(t, st.Safe)
	assert.InDelta(t, 36.5, st.TemperatureC, 0.01)
	assert.Contains(t, st.Message, "normal")
}

func TestCooldownLatchHoldsForWindow(t *testing.T) {
	sensor := writeSensor(t, "45000")
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewSysfsMonitor(42.0, 30*time.Second, []string{sensor}, 35.0, testLogger(), WithClock(clock))

	st := m.Status()
	require.False(t, st.Safe)
	assert.Contains(t, st.Message, "too hot")

	// Temperature recovers but the latch must hold inside the window.
	require.NoError(t, os.WriteFile(sensor, []byte("36000\n"), 0o644))
	now = now.Add(10 * time.Second)
	st = m.Status()
	assert.False(t, st.Safe)
	assert.Greater(t, st.CooldownRemaining, time.Duration(0))

	// After the window the device is safe again.
	now = now.Add(25 * time.Second)
	st = m.Status()
	assert.True(t, st.Safe)
}

func TestMissingSensorFallsBackToMock(t *testing.T) {
	m := NewSysfsMonitor(42.0, 30*time.Second, []string{"/nonexistent/thermal"}, 35.0, testLogger())
	st := m.Status()
	assert.True(t, st.Safe)
	assert.Equal(t, 35.0, st.TemperatureC)
}

func TestStaticMonitor(t *testing.T) {
	m := AlwaysSafe()
	assert.True(t, m.Status().Safe)

	hot := &StaticMonitor{Fixed: Status{Safe: false, TemperatureC: 50, Message: "Device too hot"}}
	assert.False(t, hot.Status().Safe)
}
