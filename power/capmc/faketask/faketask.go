// Package faketask lets the capmc client's tests exercise a real child
// process instead of mocking exec.Cmd, the same self-exec trick Nomad's
// own script-check tests use via its internal testtask helper: the test
// binary re-invokes itself with a marker environment variable set, and
// the reinvoked copy behaves like a tiny stand-in for the site power
// agent rather than running the test suite.
package faketask

import (
	"fmt"
	"os"
	"strings"
)

// runEnv is the marker that tells a re-exec'd copy of the test binary
// to behave as the fake site power agent instead of running tests.
const runEnv = "POWERCAPD_FAKECAPMC_RUN"

// modeEnv selects the fake agent's canned behavior.
const modeEnv = "POWERCAPD_FAKECAPMC_MODE"

// logEnv, if set, names a file each invocation appends its argv to —
// the applier's ordering tests read it back to see the call sequence.
const logEnv = "POWERCAPD_FAKECAPMC_LOG"

// Run checks whether this process was re-exec'd to act as the fake
// site power agent. If so, it emulates the requested verb, writes a
// canned response to stdout, and exits the process — it never returns
// in that case. Otherwise it returns false immediately, and the caller
// (normally TestMain) should proceed to run the real test suite.
func Run() bool {
	if os.Getenv(runEnv) == "" {
		return false
	}
	if logPath := os.Getenv(logEnv); logPath != "" {
		appendLog(logPath, os.Args[1:])
	}
	os.Exit(fakeMain(os.Args[1:], os.Getenv(modeEnv)))
	panic("unreachable")
}

func appendLog(path string, args []string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, strings.Join(args, " "))
}

// Path returns the path to invoke to re-exec the current test binary.
func Path() string {
	p, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return p
}

// Env returns the environment variables that must be added to a
// command's Env so that running Path() invokes the fake agent in the
// given mode instead of the test binary's normal main.
func Env(mode string) []string {
	return []string{runEnv + "=1", modeEnv + "=" + mode}
}

// EnvWithLog is Env plus a request to append every invocation's argv
// to logPath, one line per call.
func EnvWithLog(mode, logPath string) []string {
	return append(Env(mode), logEnv+"="+logPath)
}

// fakeMain emulates just enough of the site power agent's verbs for
// the capmc and power package tests: canned JSON bodies keyed by the
// first positional argument, plus failure/empty modes the client must
// tolerate.
func fakeMain(args []string, mode string) int {
	if len(args) == 0 {
		return 1
	}
	switch mode {
	case "fail":
		fmt.Fprintln(os.Stderr, "fake capmc: forced failure")
		return 1
	case "empty":
		return 0
	}

	switch args[0] {
	case "get_power_cap_capabilities":
		fmt.Print(`{"groups":[{"nids":[1,2],"controls":[{"name":"node","min":100,"max":400},{"name":"accel","min":0,"max":0}]}],"e":0,"err_msg":""}`)
	case "get_power_cap":
		fmt.Print(`{"nids":[{"nid":1,"controls":[{"name":"node","val":300}]},{"nid":2,"controls":[{"name":"node","val":300}]}]}`)
	case "node_status":
		fmt.Print(`{"ready":[1,2],"off":[],"on":[1,2],"e":0,"err_msg":""}`)
	case "get_node_energy_counter":
		fmt.Print(`{"nodes":[{"nid":1,"energy_ctr":1002000,"time":"2015-02-19 00:00:01.000000-06"},{"nid":2,"energy_ctr":1002000,"time":"2015-02-19 00:00:01.000000-06"}]}`)
	case "set_power_cap":
		fmt.Print(`{}`)
	default:
		fmt.Fprintf(os.Stderr, "fake capmc: unknown verb %q\n", args[0])
		return 1
	}
	return 0
}
