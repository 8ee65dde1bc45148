package power

import (
	"os"
	"testing"

	"github.com/sched-hpc/powercapd/power/capmc/faketask"
)

// TestMain lets applier_test.go re-exec this test binary as the fake
// site power agent, the same self-exec trick power/capmc/client_test.go
// uses directly against its own binary.
func TestMain(m *testing.M) {
	if !faketask.Run() {
		os.Exit(m.Run())
	}
}
