package capmc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// DefaultTimeout is the wall-clock deadline every capmc invocation gets
// (§4.1/§4.4/§5): 5 seconds, after which the child is killed.
const DefaultTimeout = 5 * time.Second

// Client invokes the site power agent binary as a child process and
// decodes its JSON responses into typed records (§6).
type Client struct {
	Path    string
	Timeout time.Duration
	Logger  hclog.Logger

	// Env, when non-empty, is appended to the child's inherited
	// environment. Tests use this to steer a re-exec'd test binary
	// (power/capmc/faketask) instead of mocking exec.Cmd.
	Env []string
}

// New returns a Client for the binary at path, logging under logger.
func New(path string, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{Path: path, Timeout: DefaultTimeout, Logger: logger.Named("capmc")}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// run executes the site power agent with the given verb and arguments,
// returning stdout. A nonzero exit status or empty output is reported
// as an error; the caller is expected to log and abandon that ingest
// or apply call per §7, never treat it as fatal.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	reqID := uuid.New().String()
	log := c.Logger.With("request_id", reqID)

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if log.IsDebug() {
		log.Debug("capmc: invoking", "args", args)
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capmc %v: %w: %s", args, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("capmc %v: empty response", args)
	}
	return stdout.Bytes(), nil
}

// Capabilities invokes get_power_cap_capabilities.
func (c *Client) Capabilities(ctx context.Context) (*CapabilitiesResponse, error) {
	out, err := c.run(ctx, "get_power_cap_capabilities")
	if err != nil {
		return nil, err
	}
	var resp CapabilitiesResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("capmc get_power_cap_capabilities: parse: %w", err)
	}
	return &resp, nil
}

// Caps invokes get_power_cap over the given nid range.
func (c *Client) Caps(ctx context.Context, nidRange string) (*CapsResponse, error) {
	out, err := c.run(ctx, "get_power_cap", "--nids", nidRange)
	if err != nil {
		return nil, err
	}
	var resp CapsResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("capmc get_power_cap: parse: %w", err)
	}
	return &resp, nil
}

// NodeStatus invokes node_status.
func (c *Client) NodeStatus(ctx context.Context) (*NodeStatusResponse, error) {
	out, err := c.run(ctx, "node_status")
	if err != nil {
		return nil, err
	}
	var resp NodeStatusResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("capmc node_status: parse: %w", err)
	}
	return &resp, nil
}

// EnergyCounters invokes get_node_energy_counter over the given nid range.
func (c *Client) EnergyCounters(ctx context.Context, nidRange string) (*EnergyResponse, error) {
	out, err := c.run(ctx, "get_node_energy_counter", "--nids", nidRange)
	if err != nil {
		return nil, err
	}
	var resp EnergyResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("capmc get_node_energy_counter: parse: %w", err)
	}
	return &resp, nil
}

// SetPowerCap invokes set_power_cap for the given nid range and node
// wattage, always forcing --accel 0 (accelerators are never
// redistributed by this core, §1/§4.4).
func (c *Client) SetPowerCap(ctx context.Context, nidRange string, watts uint64) error {
	_, err := c.run(ctx, "set_power_cap",
		"--nids", nidRange,
		"--node", strconv.FormatUint(watts, 10),
		"--accel", "0")
	return err
}
