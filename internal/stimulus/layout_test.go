package stimulus_test

import (
	"testing"

	"github.com/fipslab/fips/internal/gaze"
	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/stimulus"
)

func TestNewLayout(t *testing.T) {
	cfg := models.StimulusConfig{
		FrameSizeDeg:     10,
		PathLengthDeg:    8,
		FrameYShiftDeg:   3,
		QuadrantShiftDeg: 11,
		ProbeXShiftDeg:   1.5,
		ProbeYShiftDeg:   1.5,
	}

	tests := []struct {
		name     string
		quadrant models.Quadrant
		want     stimulus.Layout
	}{
		{
			name:     "left",
			quadrant: models.QuadrantLeft,
			want: stimulus.Layout{
				FrameStart: models.Point{X: -15, Y: 3},
				ProbeTop:   models.Point{X: -9.5, Y: 4.5},
				ProbeBot:   models.Point{X: -12.5, Y: 1.5},
			},
		},
		{
			name:     "right",
			quadrant: models.QuadrantRight,
			want: stimulus.Layout{
				FrameStart: models.Point{X: 7, Y: 3},
				ProbeTop:   models.Point{X: 12.5, Y: 4.5},
				ProbeBot:   models.Point{X: 9.5, Y: 1.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stimulus.NewLayout(cfg, tt.quadrant)
			if got != tt.want {
				t.Errorf("NewLayout() = %+v, want %+v", got, tt.want)
			}
			if got.Probe(models.TargetBot) != tt.want.ProbeBot {
				t.Errorf("Probe(bot) = %+v", got.Probe(models.TargetBot))
			}
		})
	}
}

func TestFixationRegion(t *testing.T) {
	cfg := models.StimulusConfig{FixationRegion: models.RegionRect, FixationRadiusDeg: 2}
	if _, ok := stimulus.FixationRegion(cfg).(gaze.Rect); !ok {
		t.Error("expected a rect region")
	}
	cfg.FixationRegion = models.RegionCircle
	r := stimulus.FixationRegion(cfg)
	if !r.Contains(models.Point{X: 2}) || r.Contains(models.Point{X: 2, Y: 0.1}) {
		t.Error("circle region boundary is wrong")
	}
}
