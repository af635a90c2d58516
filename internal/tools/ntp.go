package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/ntp"

	"github.com/sutro/homeward/internal/toolcall"
)

// NTPEffector queries network time. The primary server is tried first,
// then the backup; if both fail the system clock is used. The fallback
// path is part of the contract — get_network_time never errors.
type NTPEffector struct {
	servers  []string
	timeout  time.Duration
	location *time.Location
	logger   *slog.Logger

	// query is swapped out by tests.
	query func(server string, timeout time.Duration) (*ntp.Response, error)
}

// NewNTPEffector creates the effector. timezone is an IANA zone name;
// unknown zones fall back to UTC.
func NewNTPEffector(primary, backup string, timeout time.Duration, timezone string, logger *slog.Logger) *NTPEffector {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", timezone)
		loc = time.UTC
	}
	return &NTPEffector{
		servers:  []string{primary, backup},
		timeout:  timeout,
		location: loc,
		logger:   logger,
		query: func(server string, timeout time.Duration) (*ntp.Response, error) {
			return ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
		},
	}
}

// Handle implements the get_network_time tool.
func (e *NTPEffector) Handle(ctx context.Context, args map[string]any) toolcall.Result {
	var lastErr error
	for _, server := range e.servers {
		if server == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		resp, err := e.query(server, e.timeout)
		if err != nil {
			e.logger.Warn("ntp query failed", "server", server, "error", err)
			lastErr = err
			continue
		}
		if err := resp.Validate(); err != nil {
			e.logger.Warn("ntp response invalid", "server", server, "error", err)
			lastErr = err
			continue
		}

		data := e.timeData(resp.Time)
		data["source"] = "ntp:" + server
		data["offset_ms"] = float64(resp.ClockOffset.Microseconds()) / 1000.0
		return toolcall.Success(data)
	}

	// Both servers failed (or none configured): report system time with
	// a warning rather than failing the call.
	data := e.timeData(time.Now())
	data["source"] = "system"
	warning := "NTP servers unreachable; using system clock"
	if lastErr != nil {
		warning = fmt.Sprintf("NTP servers unreachable (%v); using system clock", lastErr)
	}
	data["warning"] = warning
	return toolcall.Success(data)
}

func (e *NTPEffector) timeData(t time.Time) map[string]any {
	utc := t.UTC()
	local := t.In(e.location)
	return map[string]any{
		"timestamp_utc":       utc.Format(time.RFC3339),
		"timestamp_local":     local.Format(time.RFC3339),
		"readable_time_utc":   utc.Format("2006-01-02 15:04:05 UTC"),
		"readable_time_local": local.Format("2006-01-02 03:04:05 PM MST"),
		"timezone":            e.location.String(),
	}
}
