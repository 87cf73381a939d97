// Package configsvc loads test profiles and hardware configuration from YAML
// files in a profiles directory, with Viper handling file parsing, defaults
// and environment overrides.
package configsvc

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"eol-tester/internal/domain"
)

const (
	activeProfileEnv  = "EOL_ACTIVE_PROFILE"
	activeProfileFile = "active_profile.yaml"
	hardwareFile      = "hardware.yaml"
	defaultProfile    = "default"
)

// Service implements domain.ConfigurationService over a directory layout:
//
//	<dir>/active_profile.yaml   active: <name>
//	<dir>/<name>.yaml           one test profile per file
//	<dir>/hardware.yaml         station hardware setup
type Service struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	profiles map[string]*domain.TestConfiguration
	hardware *domain.HardwareConfig
}

func NewService(dir string, logger *slog.Logger) *Service {
	return &Service{
		dir:      dir,
		logger:   logger.With("component", "configuration-service"),
		profiles: make(map[string]*domain.TestConfiguration),
	}
}

// ActiveProfileName resolves the profile to run: the environment override
// wins, then the active_profile.yaml marker, then "default".
func (s *Service) ActiveProfileName(ctx context.Context) (string, error) {
	if name := os.Getenv(activeProfileEnv); name != "" {
		return name, nil
	}

	path := filepath.Join(s.dir, activeProfileFile)
	if _, err := os.Stat(path); err != nil {
		// No marker file, run the default profile.
		return defaultProfile, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("active", defaultProfile)
	if err := v.ReadInConfig(); err != nil {
		return "", domain.WrapError(domain.KindConfigurationInvalid, "ActiveProfileName", err)
	}
	return v.GetString("active"), nil
}

// LoadTestConfiguration reads and caches the named profile. A missing profile
// file produces a *domain.ConfigurationNotFoundError listing what exists.
func (s *Service) LoadTestConfiguration(ctx context.Context, profile string) (*domain.TestConfiguration, error) {
	s.mu.Lock()
	if cfg, ok := s.profiles[profile]; ok {
		s.mu.Unlock()
		return cfg, nil
	}
	s.mu.Unlock()

	path := filepath.Join(s.dir, profile+".yaml")
	if _, err := os.Stat(path); err != nil {
		available, _ := s.ListAvailableProfiles(ctx)
		return nil, &domain.ConfigurationNotFoundError{Profile: profile, Available: available}
	}

	v := viper.New()
	v.SetConfigFile(path)
	setProfileDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, domain.WrapError(domain.KindConfigurationInvalid, "LoadTestConfiguration", err)
	}

	var cfg domain.TestConfiguration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.WrapError(domain.KindConfigurationInvalid, "LoadTestConfiguration", err)
	}

	s.mu.Lock()
	s.profiles[profile] = &cfg
	s.mu.Unlock()

	s.logger.Info("test profile loaded", "profile", profile,
		"temperatures", len(cfg.TemperatureList), "positions", len(cfg.StrokePositions))
	return &cfg, nil
}

// LoadHardwareConfiguration reads and caches hardware.yaml.
func (s *Service) LoadHardwareConfiguration(ctx context.Context) (*domain.HardwareConfig, error) {
	s.mu.Lock()
	if s.hardware != nil {
		hw := s.hardware
		s.mu.Unlock()
		return hw, nil
	}
	s.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(filepath.Join(s.dir, hardwareFile))
	v.SetDefault("mcu.baud_rate", 115200)
	v.SetDefault("loadcell.baud_rate", 9600)
	v.SetDefault("power.baud_rate", 9600)

	if err := v.ReadInConfig(); err != nil {
		return nil, domain.WrapError(domain.KindConfigurationMissing, "LoadHardwareConfiguration", err)
	}

	var hw domain.HardwareConfig
	if err := v.Unmarshal(&hw); err != nil {
		return nil, domain.WrapError(domain.KindConfigurationInvalid, "LoadHardwareConfiguration", err)
	}

	s.mu.Lock()
	s.hardware = &hw
	s.mu.Unlock()

	s.logger.Info("hardware configuration loaded")
	return &hw, nil
}

// ListAvailableProfiles returns the profile names in the directory, sorted.
// Marker and hardware files are not profiles.
func (s *Service) ListAvailableProfiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, domain.WrapError(domain.KindConfigurationMissing, "ListAvailableProfiles", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if name == activeProfileFile || name == hardwareFile {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// ClearCache drops cached profiles so the next load re-reads from disk.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.profiles = make(map[string]*domain.TestConfiguration)
	s.hardware = nil
	s.mu.Unlock()
}

func setProfileDefaults(v *viper.Viper) {
	v.SetDefault("voltage", 18.0)
	v.SetDefault("current", 20.0)
	v.SetDefault("fan_speed", 10)
	v.SetDefault("velocity", 60000.0)
	v.SetDefault("acceleration", 60000.0)
	v.SetDefault("deceleration", 60000.0)
	v.SetDefault("timeout", "10s")
	v.SetDefault("poweron_stabilization", "500ms")
	v.SetDefault("mcu_boot_stabilization", "2s")
	v.SetDefault("mcu_command_stabilization", "100ms")
	v.SetDefault("cycle_stabilization", "100ms")
	v.SetDefault("repeat_count", 1)
}
