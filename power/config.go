package power

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/hashicorp/go-hclog"
)

// JobLevelMode is the tri-state job_level key (§3).
type JobLevelMode int

const (
	JobLevelPerJob JobLevelMode = iota // honor each job's own Level flag
	JobLevelForceOn
	JobLevelForceOff
)

// Config is the recognized configuration surface (§3). Every field has
// a default that ParseConfig falls back to when a key is absent or
// fails validation.
type Config struct {
	BalanceInterval time.Duration
	CapmcPath       string
	CapWatts        uint64
	DecreaseRate    uint64 // percent
	IncreaseRate    uint64 // percent
	LowerThreshold  uint64 // percent
	UpperThreshold  uint64 // percent
	RecentJob       time.Duration
	JobLevel        JobLevelMode
}

// DefaultConfig returns the documented defaults from §3.
func DefaultConfig() Config {
	return Config{
		BalanceInterval: 30 * time.Second,
		CapmcPath:       "/opt/cray/capmc/default/bin/capmc",
		CapWatts:        0,
		DecreaseRate:    50,
		IncreaseRate:    20,
		LowerThreshold:  90,
		UpperThreshold:  95,
		RecentJob:       300 * time.Second,
		JobLevel:        JobLevelPerJob,
	}
}

// ParseConfig parses the comma-separated key=value surface described
// in §6 into a Config, starting from DefaultConfig() and overriding
// only the recognized keys present in raw. Unknown keys are ignored.
//
// It is parsed with hashicorp/go-envparse, the same KEY=VALUE line
// parser the teacher vendors for environment-file ingestion: the
// comma-separated line is first split into one KEY=VALUE pair per
// line, since envparse expects newline-delimited input.
//
// A malformed key=value pair (envparse itself failing) is reported as
// an error. A recognized key whose value fails its own validation
// (§3's "constraint" column) is NOT an error: per §7 and the Design
// Notes "the source's decrease_rate and increase_rate validators write
// into lower_threshold on failure; this is treated here as a bug —
// reset the offending key itself", so every validation failure resets
// that key to its default and logs a Warn through logger.
func ParseConfig(raw string, logger hclog.Logger) (Config, error) {
	cfg := DefaultConfig()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	lines := strings.ReplaceAll(raw, ",", "\n")
	pairs, err := envparse.Parse(strings.NewReader(lines))
	if err != nil {
		return cfg, err
	}

	warnReset := func(key string, value string) {
		logger.Warn("power: invalid config value, resetting to default", "key", key, "value", value)
	}

	if v, ok := pairs["balance_interval"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("balance_interval", v)
		} else {
			cfg.BalanceInterval = time.Duration(n) * time.Second
		}
	}
	if v, ok := pairs["capmc_path"]; ok {
		if v == "" {
			warnReset("capmc_path", v)
		} else {
			cfg.CapmcPath = v
		}
	}
	if v, ok := pairs["cap_watts"]; ok {
		if n, ok := parseWatts(v); !ok {
			warnReset("cap_watts", v)
		} else {
			cfg.CapWatts = n
		}
	}
	if v, ok := pairs["decrease_rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("decrease_rate", v)
		} else {
			cfg.DecreaseRate = uint64(n)
		}
	}
	if v, ok := pairs["increase_rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("increase_rate", v)
		} else {
			cfg.IncreaseRate = uint64(n)
		}
	}
	if v, ok := pairs["lower_threshold"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("lower_threshold", v)
		} else {
			cfg.LowerThreshold = uint64(n)
		}
	}
	if v, ok := pairs["upper_threshold"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("upper_threshold", v)
		} else {
			cfg.UpperThreshold = uint64(n)
		}
	}
	if v, ok := pairs["recent_job"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			warnReset("recent_job", v)
		} else {
			cfg.RecentJob = time.Duration(n) * time.Second
		}
	}
	switch pairs["job_level"] {
	case "force-on":
		cfg.JobLevel = JobLevelForceOn
	case "force-off":
		cfg.JobLevel = JobLevelForceOff
	case "per-job", "":
		cfg.JobLevel = JobLevelPerJob
	default:
		cfg.JobLevel = JobLevelPerJob
	}

	return cfg, nil
}

// parseWatts parses the cap_watts value, honoring the k/K (x1e3) and
// m/M (x1e6) suffixes from §3.
func parseWatts(v string) (uint64, bool) {
	if v == "" {
		return 0, false
	}
	mult := uint64(1)
	suffix := v[len(v)-1]
	numPart := v
	switch suffix {
	case 'k', 'K':
		mult = 1_000
		numPart = v[:len(v)-1]
	case 'm', 'M':
		mult = 1_000_000
		numPart = v[:len(v)-1]
	}
	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n * mult, true
}
