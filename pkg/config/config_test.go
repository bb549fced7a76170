package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestBillingConfigurationValidateRejectsZeros(t *testing.T) {
	valid := DefaultBillingConfiguration()
	require.NoError(t, valid.Validate())

	cases := []func(*BillingConfiguration){
		func(b *BillingConfiguration) { b.BillingFrequency = 0 },
		func(b *BillingConfiguration) { b.DistributionFrequency = 0 },
		func(b *BillingConfiguration) { b.GracePeriodBlocks = 0 },
		func(b *BillingConfiguration) { b.DefaultPricingPolicyID = 0 },
	}
	for _, mutate := range cases {
		b := DefaultBillingConfiguration()
		mutate(&b)
		require.Error(t, b.Validate())
	}
}

func TestStorageConfigurationValidate(t *testing.T) {
	require.NoError(t, StorageConfiguration{Backend: BackendMemory}.Validate())
	require.Error(t, StorageConfiguration{Backend: BackendBolt}.Validate(), "bolt requires a Path")
	require.NoError(t, StorageConfiguration{Backend: BackendBolt, Path: "/tmp/x"}.Validate())
	require.NoError(t, StorageConfiguration{Backend: BackendLevelDB, Path: "/tmp/x"}.Validate())
	require.Error(t, StorageConfiguration{Backend: "unknown"}.Validate())
}

func TestLimitsConfigurationValidateRejectsNonPositive(t *testing.T) {
	require.NoError(t, DefaultLimitsConfiguration().Validate())

	cases := []func(*LimitsConfiguration){
		func(l *LimitsConfiguration) { l.MaxNameLength = 0 },
		func(l *LimitsConfiguration) { l.MaxDeploymentDataLength = -1 },
		func(l *LimitsConfiguration) { l.MaxSolutionProviders = 0 },
	}
	for _, mutate := range cases {
		l := DefaultLimitsConfiguration()
		mutate(&l)
		require.Error(t, l.Validate())
	}
}

func TestApplicationConfigurationValidateRequiresAddresses(t *testing.T) {
	require.Error(t, ApplicationConfiguration{}.Validate())
	require.Error(t, ApplicationConfiguration{NotifyAddress: ":7000"}.Validate())
	require.NoError(t, ApplicationConfiguration{NotifyAddress: ":7000", MetricsAddress: ":7001"}.Validate())
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("BillingConfiguration:\n  BillingFrequency: 1200\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1200), cfg.Billing.BillingFrequency)
	require.Equal(t, DefaultBillingConfiguration().GracePeriodBlocks, cfg.Billing.GracePeriodBlocks)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("BillingConfiguration:\n  BillingFrequency: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
