package power

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateWatts_Basic(t *testing.T) {
	watts, ok := estimateWatts(1_000_000, 1_000_000, 1_002_000, 3_000_000)
	require.True(t, ok)
	// Δj=2000 J, Δt=2_000_000 µs => 2000*1e6/2_000_000 = 1000 W
	require.Equal(t, uint64(1000), watts)
}

func TestEstimateWatts_ZeroPrevTime(t *testing.T) {
	_, ok := estimateWatts(1_000_000, 0, 1_002_000, 1_000_000)
	require.False(t, ok)
}

func TestEstimateWatts_ZeroCurrentTime(t *testing.T) {
	_, ok := estimateWatts(1_000_000, 500_000, 1_002_000, 0)
	require.False(t, ok)
}

func TestEstimateWatts_NonMonotoneJoules(t *testing.T) {
	_, ok := estimateWatts(2_000_000, 100, 1_002_000, 200)
	require.False(t, ok)
}

func TestEstimateWatts_EqualJoules(t *testing.T) {
	_, ok := estimateWatts(1_002_000, 100, 1_002_000, 200)
	require.False(t, ok)
}

// TestEstimateWatts_MidnightWrap follows §8's concrete scenario:
// prev at 23:59:59.5, now at 00:00:00.5, Δt must equal 1 second.
func TestEstimateWatts_MidnightWrap(t *testing.T) {
	prevTime := uint64(23*3600+59*60+59)*1_000_000 + 500_000
	nowTime := uint64(500_000)

	watts, ok := estimateWatts(1_000_000, prevTime, 1_000_500, nowTime)
	require.True(t, ok)
	// Δj = 500 J over Δt = 1s => 500 W
	require.Equal(t, uint64(500), watts)
}

func TestEstimateWatts_OutOfRangePrevTime(t *testing.T) {
	// prevTimeUsec beyond a full day can't be explained by a single
	// midnight wrap; no estimate is produced.
	_, ok := estimateWatts(1_000_000, usecPerDay+100, 1_002_000, 1)
	require.False(t, ok)
}
