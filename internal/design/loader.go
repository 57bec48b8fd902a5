package design

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/fipslab/fips/internal/models"
)

var requiredColumns = []string{"quadrant", "motion_duration_ms", "target"}

// LoadCells reads an explicit condition table from a CSV file in fsys. The
// header must name the quadrant, motion_duration_ms and target columns;
// other columns are ignored.
func LoadCells(fsys fs.FS, name string) ([]models.Cell, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening conditions file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("conditions file %s is empty", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("conditions file %s: missing column %q", name, c)
		}
	}

	var cells []models.Cell
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		q, err := strconv.Atoi(rec[col["quadrant"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid quadrant: %v", line, err)
		}
		dur, err := strconv.ParseFloat(rec[col["motion_duration_ms"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid motion duration: %v", line, err)
		}

		cell := models.Cell{
			Quadrant:         models.Quadrant(q),
			MotionDurationMs: dur,
			Target:           models.Target(strings.ToLower(rec[col["target"]])),
		}
		if err := validateCell(cell); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cells = append(cells, cell)
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("no conditions found in %s", name)
	}
	return cells, nil
}

func validateCell(c models.Cell) error {
	if c.Quadrant != models.QuadrantLeft && c.Quadrant != models.QuadrantRight {
		return fmt.Errorf("unknown quadrant %d", c.Quadrant)
	}
	if c.MotionDurationMs <= 0 {
		return fmt.Errorf("motion duration must be positive, got %.1f", c.MotionDurationMs)
	}
	if !c.Target.Valid() {
		return fmt.Errorf("unknown target %q", c.Target)
	}
	return nil
}
