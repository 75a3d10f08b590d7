// Package process detects whether the streaming client is running.
package process

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

type Info struct {
	PID  int32
	Name string
}

// Detector matches running processes by executable name. Names compare
// case-insensitively and ignore a trailing ".exe".
type Detector struct {
	names []string
	list  func(ctx context.Context) ([]Info, error)
}

func NewDetector(names []string) *Detector {
	norm := make([]string, 0, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			norm = append(norm, n)
		}
	}
	return &Detector{names: norm, list: listProcesses}
}

// Find returns the matching processes.
func (d *Detector) Find(ctx context.Context) ([]Info, error) {
	if len(d.names) == 0 {
		return nil, nil
	}
	procs, err := d.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var found []Info
	for _, p := range procs {
		if d.matches(p.Name) {
			found = append(found, p)
		}
	}
	return found, nil
}

func (d *Detector) Running(ctx context.Context) (bool, error) {
	found, err := d.Find(ctx)
	return len(found) > 0, err
}

func (d *Detector) matches(name string) bool {
	name = normalize(name)
	for _, n := range d.names {
		if name == n {
			return true
		}
	}
	return false
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}

func listProcesses(ctx context.Context) ([]Info, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(procs))
	for _, p := range procs {
		// Processes can exit between listing and inspection.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Info{PID: p.Pid, Name: name})
	}
	return out, nil
}
