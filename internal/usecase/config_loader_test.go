package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/configsvc"
	"eol-tester/internal/domain"
)

func TestConfigLoaderCachesAndTracksProfile(t *testing.T) {
	svc := &fakeConfigService{cfg: validTestConfig(), hw: &domain.HardwareConfig{}}
	loader := NewConfigLoader(svc, configsvc.NewValidator(), discardLogger())

	assert.Empty(t, loader.ActiveProfile(), "nothing loaded yet")

	cfg, hw, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotNil(t, hw)
	assert.Equal(t, "default", loader.ActiveProfile())

	// Cached: a second load returns the same instances.
	cfg2, hw2, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, cfg2)
	assert.Same(t, hw, hw2)

	loader.Reset()
	assert.Empty(t, loader.ActiveProfile())
}

func TestConfigLoaderRejectsInvalidProfile(t *testing.T) {
	bad := validTestConfig()
	bad.Voltage = 0
	svc := &fakeConfigService{cfg: bad, hw: &domain.HardwareConfig{}}
	loader := NewConfigLoader(svc, configsvc.NewValidator(), discardLogger())

	_, _, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfigurationInvalid, domain.KindOf(err))
	assert.Empty(t, loader.ActiveProfile(), "invalid profiles are not cached")
}
