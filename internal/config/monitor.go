package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"

	"github.com/BurntSushi/toml"
	"github.com/fipslab/fips/internal/models"
)

const (
	defaultDistanceCm  = 57.0
	defaultRefreshRate = 60.0
)

// DefaultMonitorProfiles returns the built-in monitor profiles.
func DefaultMonitorProfiles() map[string]models.MonitorProfile {
	return map[string]models.MonitorProfile{
		"default": {
			Name:        "default",
			SizeCm:      [2]float64{53, 30},
			SizePx:      [2]int{1920, 1080},
			DistanceCm:  defaultDistanceCm,
			RefreshRate: defaultRefreshRate,
		},
		"lab": {
			Name:        "lab",
			SizeCm:      [2]float64{54, 30.4},
			SizePx:      [2]int{1280, 720},
			DistanceCm:  65,
			RefreshRate: 120,
		},
		"oled": {
			Name:        "oled",
			SizeCm:      [2]float64{73, 33},
			SizePx:      [2]int{1920, 1080},
			DistanceCm:  60,
			RefreshRate: 60,
		},
	}
}

// LoadMonitorProfiles reads file from fsys and merges its [monitors.<name>]
// tables over the built-in profiles. A missing file yields the built-ins.
func LoadMonitorProfiles(fsys fs.FS, file string) (map[string]models.MonitorProfile, error) {
	profiles := DefaultMonitorProfiles()

	data, err := fs.ReadFile(fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("monitor file not found, using built-in profiles", "file", file)
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	var mf models.MonitorFile
	md, err := toml.Decode(string(data), &mf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	for name, m := range mf.Monitors {
		m.Name = name
		if !md.IsDefined("monitors", name, "distance_cm") {
			m.DistanceCm = defaultDistanceCm
		}
		if !md.IsDefined("monitors", name, "refresh_rate") {
			m.RefreshRate = defaultRefreshRate
		}
		if m.SizeCm[0] <= 0 || m.SizePx[0] <= 0 || m.SizePx[1] <= 0 {
			return nil, fmt.Errorf("monitor %q: size_cm and size_px must be positive", name)
		}
		if m.RefreshRate <= 0 {
			return nil, fmt.Errorf("monitor %q: refresh_rate must be positive, got %.1f", name, m.RefreshRate)
		}
		mf.Monitors[name] = m
	}
	maps.Copy(profiles, mf.Monitors)

	return profiles, nil
}

// LookupMonitor returns the profile called name.
func LookupMonitor(profiles map[string]models.MonitorProfile, name string) (models.MonitorProfile, error) {
	m, ok := profiles[name]
	if !ok {
		return models.MonitorProfile{}, fmt.Errorf("unknown monitor %q", name)
	}
	return m, nil
}
