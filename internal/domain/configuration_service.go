package domain

import "context"

// ConfigurationService resolves the active profile and loads test and
// hardware configuration. LoadTestConfiguration fails with a
// *ConfigurationNotFoundError when the profile does not exist.
type ConfigurationService interface {
	ActiveProfileName(ctx context.Context) (string, error)
	LoadTestConfiguration(ctx context.Context, profile string) (*TestConfiguration, error)
	LoadHardwareConfiguration(ctx context.Context) (*HardwareConfig, error)
	ListAvailableProfiles(ctx context.Context) ([]string, error)
}

// ConfigurationValidator checks a loaded test configuration, aggregating
// every field error into one KindConfigurationInvalid error.
type ConfigurationValidator interface {
	ValidateTestConfiguration(cfg *TestConfiguration) error
}
