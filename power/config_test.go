package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig("", nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Overrides(t *testing.T) {
	raw := "balance_interval=10,cap_watts=500k,decrease_rate=25,job_level=force-on"
	cfg, err := ParseConfig(raw, nil)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.BalanceInterval)
	require.Equal(t, uint64(500_000), cfg.CapWatts)
	require.Equal(t, uint64(25), cfg.DecreaseRate)
	require.Equal(t, JobLevelForceOn, cfg.JobLevel)
	// untouched keys keep their defaults
	require.Equal(t, DefaultConfig().IncreaseRate, cfg.IncreaseRate)
}

func TestParseConfig_WattsSuffixes(t *testing.T) {
	cases := map[string]uint64{
		"1000":  1000,
		"2k":    2000,
		"3K":    3000,
		"1m":    1_000_000,
		"2M":    2_000_000,
	}
	for in, want := range cases {
		cfg, err := ParseConfig("cap_watts="+in, nil)
		require.NoError(t, err)
		require.Equal(t, want, cfg.CapWatts, "input %q", in)
	}
}

// TestParseConfig_InvalidKeyResetsItself asserts the fix for the
// original's decrease_rate/increase_rate validators writing into
// lower_threshold on failure: an invalid value resets only the
// offending key, leaving every other key's override intact.
func TestParseConfig_InvalidKeyResetsItself(t *testing.T) {
	raw := "decrease_rate=0,lower_threshold=80"
	cfg, err := ParseConfig(raw, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().DecreaseRate, cfg.DecreaseRate)
	require.Equal(t, uint64(80), cfg.LowerThreshold)
}

func TestParseConfig_UnknownKeyIgnored(t *testing.T) {
	cfg, err := ParseConfig("frobnicate=1,cap_watts=100", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100), cfg.CapWatts)
}

func TestParseConfig_JobLevelModes(t *testing.T) {
	cases := map[string]JobLevelMode{
		"force-on":  JobLevelForceOn,
		"force-off": JobLevelForceOff,
		"per-job":   JobLevelPerJob,
		"bogus":     JobLevelPerJob,
	}
	for in, want := range cases {
		cfg, err := ParseConfig("job_level="+in, nil)
		require.NoError(t, err)
		require.Equal(t, want, cfg.JobLevel, "input %q", in)
	}
}
