// Package results writes trial outcomes to BIDS-style CSV files.
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fipslab/fips/internal/models"
)

// Header is the column order of every run file.
var Header = []string{
	"sub", "ses", "run", "trial", "attempt",
	"quadrant", "motion_duration_ms", "n_cue", "saccade_delay", "target", "trial_type",
	"status", "outcome", "abort_reason", "abort_frame", "fixation", "error_type",
	"target_pos_x", "target_pos_y", "target_pos_x_deg", "target_pos_y_deg",
	"saccade_spos_x", "saccade_spos_y", "saccade_epos_x", "saccade_epos_y",
	"saccade_spos_x_deg", "saccade_spos_y_deg", "saccade_epos_x_deg", "saccade_epos_y_deg",
	"saccade_latency", "saccade_dur", "saccade_end_missing",
	"cue_frame", "total_frames", "frames_presented", "held_frames",
}

// RunFileName is the file name of one run, e.g.
// sub-07_ses-2_run-1_task-FIPSSaccade_eyetracking.csv.
func RunFileName(subject, session, run int, task string) string {
	return fmt.Sprintf("sub-%02d_ses-%d_run-%d_task-%s_eyetracking.csv", subject, session, run, task)
}

// SessionFileName names a per-session side file, e.g.
// sub-07_ses-2_task-FIPSSaccade_session.json for kind "session".
func SessionFileName(subject, session int, task, kind, ext string) string {
	return fmt.Sprintf("sub-%02d_ses-%d_task-%s_%s.%s", subject, session, task, kind, ext)
}

// TaskDir is the directory a subject's files for task go to.
func TaskDir(dataDir string, subject int, task string) string {
	return filepath.Join(dataDir, fmt.Sprintf("sub-%02d", subject), task)
}

// CSVSink buffers outcomes in memory and writes them on Flush.
type CSVSink struct {
	mu   sync.Mutex
	rows [][]string
}

// NewCSVSink returns an empty sink.
func NewCSVSink() *CSVSink {
	return &CSVSink{}
}

// AppendRow adds one outcome.
func (s *CSVSink) AppendRow(o models.TrialOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row(o))
	return nil
}

// Len is the number of buffered rows.
func (s *CSVSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Flush writes the header and every buffered row to path, creating parent
// directories. An existing file is not overwritten.
func (s *CSVSink) Flush(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating run file: %w", err)
	}
	if err := s.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes the header and rows to w.
func (s *CSVSink) WriteCSV(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := cw.WriteAll(s.rows); err != nil {
		return err
	}
	return cw.Error()
}

// Row flattens an outcome into the columns of Header.
func Row(o models.TrialOutcome) []string {
	c := o.Condition

	var errType string
	if o.Error != nil {
		errType = string(o.Error.Type)
	}

	var sStart, sEnd, sStartPx, sEndPx [2]string
	var endMissing string
	if s := o.Saccade; s != nil {
		sStart = point(s.Start)
		sStartPx = point(o.SaccadeStartPx)
		if s.Ended {
			sEnd = point(s.End)
			sEndPx = point(o.SaccadeEndPx)
		}
		endMissing = strconv.FormatBool(!s.Ended)
	}

	var latency, dur string
	if o.Outcome == models.OutcomeResponseRecorded && o.Saccade != nil {
		latency = num(o.LatencyMs)
		if o.Saccade.Ended {
			dur = num(o.DurationMs)
		}
	}

	targetPx, targetDeg := point(o.TargetPosPx), point(o.TargetPos)
	return []string{
		o.Subject, o.Session, strconv.Itoa(o.Run), strconv.Itoa(o.Trial), strconv.Itoa(o.Attempt),
		strconv.Itoa(int(c.Quadrant)), num(c.MotionDurationMs), strconv.Itoa(c.CueCycles), num(c.FixationDelayMs),
		string(o.Target), o.TrialType,
		string(o.Status), string(o.Outcome), string(o.AbortReason), strconv.Itoa(o.AbortFrame), o.Fixation, errType,
		targetPx[0], targetPx[1], targetDeg[0], targetDeg[1],
		sStartPx[0], sStartPx[1], sEndPx[0], sEndPx[1],
		sStart[0], sStart[1], sEnd[0], sEnd[1],
		latency, dur, endMissing,
		strconv.Itoa(o.CueFrame), strconv.Itoa(o.TotalFrames), strconv.Itoa(o.FramesPresented), strconv.Itoa(o.HeldFrames),
	}
}

func point(p models.Point) [2]string {
	return [2]string{num(p.X), num(p.Y)}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
