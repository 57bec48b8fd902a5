package models

// MonitorProfile describes the physical display used for a session.
type MonitorProfile struct {
	Name        string     `toml:"-" json:"name"`
	SizeCm      [2]float64 `toml:"size_cm" json:"size_cm"`
	SizePx      [2]int     `toml:"size_px" json:"size_px"`
	DistanceCm  float64    `toml:"distance_cm" json:"distance_cm"`
	RefreshRate float64    `toml:"refresh_rate" json:"refresh_rate"` // default: 60
}

// MonitorFile represents the parsed monitors.toml file.
type MonitorFile struct {
	Monitors map[string]MonitorProfile `toml:"monitors"`
}
