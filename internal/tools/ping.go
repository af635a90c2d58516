package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/sutro/homeward/internal/toolcall"
)

// HostnamePattern is the allowed shape for ping targets. Anything else
// is rejected before the subprocess is spawned.
var HostnamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,253}$`)

var (
	// packetLossRe matches the loss summary on Linux, macOS, and
	// Windows ("2% packet loss", "0.0% packet loss", "(25% loss)").
	packetLossRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)% (?:packet )?loss`)

	// latencyRe matches per-packet round-trip times. A single
	// locale-independent pattern: a decimal following "time=" (or
	// "time<" on Windows for sub-millisecond replies).
	latencyRe = regexp.MustCompile(`time[=<]([0-9]+(?:\.[0-9]+)?)`)
)

const pingCount = 4

// PingEffector checks host reachability via the platform ping command.
type PingEffector struct {
	logger *slog.Logger

	// run executes the ping command and returns combined output plus
	// the exit error, if any. Swapped out by tests.
	run func(ctx context.Context, hostname string) (string, error)
}

// NewPingEffector creates the effector using the real ping binary.
func NewPingEffector(logger *slog.Logger) *PingEffector {
	if logger == nil {
		logger = slog.Default()
	}
	return &PingEffector{
		logger: logger,
		run:    runPing,
	}
}

// runPing spawns the platform ping command. Windows counts with -n,
// everything else with -c. The hostname is passed as a single argv
// element, never through a shell.
func runPing(ctx context.Context, hostname string) (string, error) {
	countFlag := "-c"
	if runtime.GOOS == "windows" {
		countFlag = "-n"
	}
	cmd := exec.CommandContext(ctx, "ping", countFlag, strconv.Itoa(pingCount), hostname)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Handle implements the ping_host tool.
func (e *PingEffector) Handle(ctx context.Context, args map[string]any) toolcall.Result {
	hostname := String(args, "hostname")
	if !HostnamePattern.MatchString(hostname) {
		return toolcall.Error(toolcall.ErrInvalidArguments,
			"parameter \"hostname\" must match [A-Za-z0-9._-]{1,253}")
	}

	output, runErr := e.run(ctx, hostname)
	if ctx.Err() == context.DeadlineExceeded {
		return toolcall.Error(toolcall.ErrEffectorTimeout,
			fmt.Sprintf("ping to %s timed out", hostname))
	}

	exitOK := runErr == nil
	if runErr != nil {
		if _, isExit := runErr.(*exec.ExitError); !isExit {
			// The binary itself could not be run — not a host problem.
			return toolcall.Error(toolcall.ErrEffectorUnavailable,
				fmt.Sprintf("ping command failed: %v", runErr))
		}
	}

	result := parsePingOutput(hostname, output, exitOK)
	e.logger.Debug("ping complete",
		"host", hostname,
		"reachable", result["reachable"],
		"exit_ok", exitOK,
	)
	return toolcall.Success(result)
}

// parsePingOutput derives reachability from the exit status AND the
// parsed packet statistics: exit 0 with loss below 100% means
// reachable. Latency averages every per-packet time= sample; when no
// sample parses, latency is null but reachability may still hold.
func parsePingOutput(hostname, output string, exitOK bool) map[string]any {
	var packetLoss any
	lossKnown := false
	lossPct := 0.0
	if m := packetLossRe.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			lossPct = v
			lossKnown = true
			packetLoss = v
		}
	}

	var avgLatency any
	if samples := latencyRe.FindAllStringSubmatch(output, -1); len(samples) > 0 {
		sum := 0.0
		n := 0
		for _, m := range samples {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				sum += v
				n++
			}
		}
		if n > 0 {
			avgLatency = sum / float64(n)
		}
	}

	reachable := exitOK && (!lossKnown || lossPct < 100)

	snippet := strings.TrimSpace(output)
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}

	return map[string]any{
		"host":            hostname,
		"reachable":       reachable,
		"avg_latency_ms":  avgLatency,
		"packet_loss_pct": packetLoss,
		"raw_snippet":     snippet,
	}
}
