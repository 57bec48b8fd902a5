// Package system inspects the machine before a session starts.
package system

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/util"
)

// Status is a snapshot of the host.
type Status struct {
	Hostname           string `json:"hostname"`
	OS                 string `json:"os"`
	Platform           string `json:"platform"`
	PlatformVersion    string `json:"platform_version"`
	LogicalCPUs        int    `json:"logical_cpus"`
	TotalMemoryMiB     int    `json:"total_memory_mib"`
	AvailableMemoryMiB int    `json:"available_memory_mib"`
	GitCommit          string `json:"git_commit,omitempty"`
}

// Collect reads the host status. dir is the directory whose git HEAD is
// recorded; an empty dir skips it.
func Collect(ctx context.Context, dir string) (Status, error) {
	var st Status

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, fmt.Errorf("reading memory: %w", err)
	}
	st.TotalMemoryMiB = util.MiB(vm.Total)
	st.AvailableMemoryMiB = util.MiB(vm.Available)

	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return st, fmt.Errorf("counting cpus: %w", err)
	}
	st.LogicalCPUs = n

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return st, fmt.Errorf("reading host info: %w", err)
	}
	st.Hostname = info.Hostname
	st.OS = info.OS
	st.Platform = info.Platform
	st.PlatformVersion = info.PlatformVersion

	if dir != "" {
		st.GitCommit = GitCommit(ctx, dir)
	}
	return st, nil
}

// Check compares st against the configured thresholds and returns one
// warning per problem found.
func Check(st Status, cfg models.SystemConfig) []string {
	var warnings []string

	minMiB, err := util.ParseMemory(cfg.MinFreeMemory)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Ignoring min_free_memory: %v", err))
	} else if minMiB > 0 && st.AvailableMemoryMiB < minMiB {
		warnings = append(warnings, fmt.Sprintf("Not enough available RAM: %d MiB available, %d MiB required.",
			st.AvailableMemoryMiB, minMiB))
	}

	if cfg.MinCPUs > 0 && st.LogicalCPUs < cfg.MinCPUs {
		warnings = append(warnings, fmt.Sprintf("Only %d logical CPUs, %d recommended.", st.LogicalCPUs, cfg.MinCPUs))
	}

	if st.OS == "darwin" {
		warnings = append(warnings, "Process priority cannot be raised on macOS.")
	}

	return warnings
}

// GitCommit returns the HEAD commit of the repository containing dir, or ""
// if there is none.
func GitCommit(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
