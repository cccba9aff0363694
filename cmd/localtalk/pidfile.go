package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pidFile records the PID of a running `localtalk serve`.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "localtalk.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s is corrupt", p)
	}
	return pid, nil
}

func (p pidFile) remove() { os.Remove(string(p)) }

var errAlreadyRunning = errors.New("server already running")

// checkNotRunning probes /health on the configured port. An answer means
// another instance owns the port; its PID is reported when the file has it.
func checkNotRunning(port int, p pidFile) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return nil
	}
	resp.Body.Close()
	if pid, err := p.read(); err == nil {
		return fmt.Errorf("%w (PID %d)", errAlreadyRunning, pid)
	}
	return fmt.Errorf("%w on port %d", errAlreadyRunning, port)
}
