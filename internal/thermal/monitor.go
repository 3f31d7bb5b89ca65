// Package thermal reports device heat state so the orchestrator can refuse
// heavy inference stages before the device overheats.
//
// On Android the battery temperature sensor is preferred (decidegrees);
// generic Linux thermal zones report millidegrees. When no sensor is
// readable the monitor degrades to a fixed mock temperature so development
// machines keep working.
package thermal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is one thermal reading plus the safety verdict derived from it.
type Status struct {
	Safe              bool
	TemperatureC      float64
	Message           string
	CooldownRemaining time.Duration
}

// Monitor reports whether the device is currently safe for inference.
type Monitor interface {
	Status() Status
}

// SysfsMonitor reads ordered candidate sensor files and applies a cooldown
// latch: once the throttle temperature is exceeded, the device is reported
// unsafe for the full cooldown window even if the reading recovers sooner.
type SysfsMonitor struct {
	throttleTempC float64
	cooldown      time.Duration
	sensorPath    string
	mockTempC     float64
	log           *logrus.Logger
	now           func() time.Time

	mu            sync.Mutex
	inCooldown    bool
	cooldownStart time.Time
}

// Option configures a SysfsMonitor.
type Option func(*SysfsMonitor)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *SysfsMonitor) { m.now = now }
}

// NewSysfsMonitor probes the candidate sensor paths in order and keeps the
// first readable one. An empty result means mock mode.
func NewSysfsMonitor(throttleTempC float64, cooldown time.Duration, sensorPaths []string, mockTempC float64, log *logrus.Logger, opts ...Option) *SysfsMonitor {
	m := &SysfsMonitor{
		throttleTempC: throttleTempC,
		cooldown:      cooldown,
		mockTempC:     mockTempC,
		log:           log,
		now:           time.Now,
	}
	for _, p := range sensorPaths {
		if _, err := os.Stat(p); err == nil {
			m.sensorPath = p
			break
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	log.WithFields(logrus.Fields{
		"sensor":          m.sensorPath,
		"throttle_temp_c": throttleTempC,
		"cooldown":        cooldown,
	}).Info("Thermal monitor initialized")
	return m
}

// Temperature reads the current device temperature in Celsius.
func (m *SysfsMonitor) Temperature() float64 {
	if m.sensorPath == "" {
		return m.mockTempC
	}
	data, err := os.ReadFile(m.sensorPath)
	if err != nil {
		m.log.WithError(err).Warn("Failed to read thermal sensor, using mock temperature")
		return m.mockTempC
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		m.log.WithError(err).Warn("Unparseable thermal sensor value, using mock temperature")
		return m.mockTempC
	}
	return normalizeSensorValue(raw)
}

// normalizeSensorValue converts raw sysfs readings to Celsius. Linux zones
// report millidegrees, Android battery sensors decidegrees.
func normalizeSensorValue(raw int) float64 {
	switch {
	case raw > 1000:
		return float64(raw) / 1000.0
	case raw > 100:
		return float64(raw) / 10.0
	default:
		return float64(raw)
	}
}

// Status implements Monitor.
func (m *SysfsMonitor) Status() Status {
	temp := m.Temperature()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inCooldown {
		elapsed := m.now().Sub(m.cooldownStart)
		remaining := m.cooldown - elapsed
		if remaining > 0 {
			return Status{
				Safe:              false,
				TemperatureC:      temp,
				Message:           fmt.Sprintf("Device cooling down. Wait %ds.", int(remaining.Seconds())),
				CooldownRemaining: remaining,
			}
		}
		m.inCooldown = false
		m.log.Info("Thermal cooldown window ended")
	}

	if temp > m.throttleTempC {
		m.inCooldown = true
		m.cooldownStart = m.now()
		m.log.WithFields(logrus.Fields{
			"temperature_c": temp,
			"throttle_c":    m.throttleTempC,
		}).Warn("Thermal limit exceeded, entering cooldown")
		return Status{
			Safe:              false,
			TemperatureC:      temp,
			Message:           fmt.Sprintf("Device too hot (%.1f C). Cooldown active.", temp),
			CooldownRemaining: m.cooldown,
		}
	}

	headroom := m.throttleTempC - temp
	msg := fmt.Sprintf("Thermal status: normal (%.1f C)", temp)
	if headroom < 5.0 {
		msg = fmt.Sprintf("Thermal status: warm (%.1f C, %.1f C headroom)", temp, headroom)
	}
	return Status{Safe: true, TemperatureC: temp, Message: msg}
}

// StaticMonitor always reports a fixed status. Used in tests and in mock
// hardware mode.
type StaticMonitor struct {
	Fixed Status
}

// Status implements Monitor.
func (s *StaticMonitor) Status() Status { return s.Fixed }

// AlwaysSafe returns a monitor reporting a cool, safe device.
func AlwaysSafe() *StaticMonitor {
	return &StaticMonitor{Fixed: Status{Safe: true, TemperatureC: 30.0, Message: "Thermal status: normal (30.0 C)"}}
}
