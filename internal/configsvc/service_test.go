package configsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(dir, logger), dir
}

const profileYAML = `
voltage: 18.0
current: 20.0
temperature_list: [25.0, 85.0]
stroke_positions: [1000.0, 2000.0]
fan_speed: 5
velocity: 100.0
acceleration: 100.0
deceleration: 100.0
timeout: 10s
repeat_count: 2
pass_criteria:
  force_limit_min: 10.0
  force_limit_max: 20.0
  temperature_limit_min: -40.0
  temperature_limit_max: 150.0
`

func TestLoadTestConfiguration(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "default.yaml", profileYAML)

	cfg, err := svc.LoadTestConfiguration(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, 18.0, cfg.Voltage)
	assert.Equal(t, []float64{25, 85}, cfg.TemperatureList)
	assert.Equal(t, []float64{1000, 2000}, cfg.StrokePositions)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.RepeatCount)
	assert.Equal(t, 10.0, cfg.PassCriteria.ForceLimitMin)
	assert.Equal(t, 4, cfg.MatrixSize())
}

func TestLoadTestConfigurationAppliesDefaults(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "minimal.yaml", "temperature_list: [25.0]\nstroke_positions: [1000.0]\n")

	cfg, err := svc.LoadTestConfiguration(context.Background(), "minimal")
	require.NoError(t, err)
	assert.Equal(t, 18.0, cfg.Voltage)
	assert.Equal(t, 1, cfg.RepeatCount)
	assert.Equal(t, 2*time.Second, cfg.MCUBootStabilization)
}

func TestLoadMissingProfileListsAvailable(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "default.yaml", profileYAML)
	writeFile(t, dir, "burn_in.yaml", profileYAML)

	_, err := svc.LoadTestConfiguration(context.Background(), "nonexistent")
	require.Error(t, err)

	var notFound *domain.ConfigurationNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "nonexistent", notFound.Profile)
	assert.Equal(t, []string{"burn_in", "default"}, notFound.Available)
	assert.Equal(t, domain.KindConfigurationMissing, domain.KindOf(err))
}

func TestActiveProfileResolution(t *testing.T) {
	svc, dir := newTestService(t)

	// No marker file: the default profile.
	name, err := svc.ActiveProfileName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", name)

	writeFile(t, dir, "active_profile.yaml", "active: burn_in\n")
	name, err = svc.ActiveProfileName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "burn_in", name)

	// Environment override wins.
	t.Setenv("EOL_ACTIVE_PROFILE", "calibration")
	name, err = svc.ActiveProfileName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "calibration", name)
}

func TestListAvailableProfilesSkipsMarkers(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "default.yaml", profileYAML)
	writeFile(t, dir, "active_profile.yaml", "active: default\n")
	writeFile(t, dir, "hardware.yaml", "robot:\n  axis_id: 0\n")
	writeFile(t, dir, "notes.txt", "not a profile")

	profiles, err := svc.ListAvailableProfiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, profiles)
}

func TestLoadHardwareConfiguration(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "hardware.yaml", `
robot:
  axis_id: 0
  model: ajinextek
mcu:
  port: /dev/ttyUSB0
loadcell:
  port: /dev/ttyUSB1
  baud_rate: 19200
power:
  port: /dev/ttyUSB2
`)

	hw, err := svc.LoadHardwareConfiguration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ajinextek", hw.Robot.Model)
	assert.Equal(t, "/dev/ttyUSB0", hw.MCU.Port)
	assert.Equal(t, 115200, hw.MCU.BaudRate, "default applied")
	assert.Equal(t, 19200, hw.LoadCell.BaudRate, "explicit value wins")
}

func TestLoadHardwareConfigurationMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.LoadHardwareConfiguration(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfigurationMissing, domain.KindOf(err))
}

func TestProfileCacheAndClear(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, dir, "default.yaml", profileYAML)

	first, err := svc.LoadTestConfiguration(context.Background(), "default")
	require.NoError(t, err)

	// Cached: a second load returns the same instance.
	second, err := svc.LoadTestConfiguration(context.Background(), "default")
	require.NoError(t, err)
	assert.Same(t, first, second)

	svc.ClearCache()
	third, err := svc.LoadTestConfiguration(context.Background(), "default")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestValidatorAggregatesViolations(t *testing.T) {
	v := NewValidator()

	cfg := &domain.TestConfiguration{
		Voltage:         18,
		Current:         20,
		TemperatureList: []float64{25},
		StrokePositions: []float64{1000},
		Velocity:        100,
		Acceleration:    100,
		Deceleration:    100,
		Timeout:         10 * time.Second,
		RepeatCount:     1,
		PassCriteria: domain.PassCriteria{
			ForceLimitMin: 1, ForceLimitMax: 10,
			TemperatureLimitMin: -40, TemperatureLimitMax: 150,
		},
	}
	require.NoError(t, v.ValidateTestConfiguration(cfg))

	bad := *cfg
	bad.Voltage = 0
	bad.StrokePositions = []float64{-5}
	bad.PassCriteria.ForceLimitMin = 50

	err := v.ValidateTestConfiguration(&bad)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfigurationInvalid, domain.KindOf(err))
	// All three violations are reported at once.
	assert.Contains(t, err.Error(), "Voltage")
	assert.Contains(t, err.Error(), `"StrokePositions[0]" failed on the "stroke" rule`)
	assert.Contains(t, err.Error(), "force limit")
}
