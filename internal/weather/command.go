package weather

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultCommandTimeout = 20 * time.Second

// CommandFetcher runs an external program that prints a snapshot JSON object
// on stdout. The place is passed as --place/--lat/--lon/--tz flags.
type CommandFetcher struct {
	Command string
	Timeout time.Duration
}

// Fetch runs the command and parses its output.
func (c *CommandFetcher) Fetch(ctx context.Context, p Place) (Snapshot, error) {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return Snapshot{}, errors.New("weather command is empty")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tz := p.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	args := append(fields[1:],
		"--place", p.Name,
		"--lat", strconv.FormatFloat(p.Lat, 'f', 4, 64),
		"--lon", strconv.FormatFloat(p.Lon, 'f', 4, 64),
		"--tz", tz,
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Snapshot{}, fmt.Errorf("weather command timed out after %s", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Snapshot{}, fmt.Errorf("weather command failed: %w: %s", err, msg)
		}
		return Snapshot{}, fmt.Errorf("weather command failed: %w", err)
	}

	return Parse(fields[0], stdout.Bytes())
}
