package results_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/results"
)

func column(t *testing.T, row []string, name string) string {
	t.Helper()
	for i, h := range results.Header {
		if h == name {
			return row[i]
		}
	}
	t.Fatalf("no column %q", name)
	return ""
}

func TestRunFileName(t *testing.T) {
	got := results.RunFileName(7, 2, 1, "FIPSSaccade")
	if got != "sub-07_ses-2_run-1_task-FIPSSaccade_eyetracking.csv" {
		t.Errorf("RunFileName() = %s", got)
	}
	if got := results.SessionFileName(7, 2, "FIPSSaccade", "session", "json"); got != "sub-07_ses-2_task-FIPSSaccade_session.json" {
		t.Errorf("SessionFileName() = %s", got)
	}
	dir := results.TaskDir("data", 7, "FIPSSaccade")
	if dir != filepath.Join("data", "sub-07", "FIPSSaccade") {
		t.Errorf("TaskDir() = %s", dir)
	}
}

func TestRowResponse(t *testing.T) {
	o := models.TrialOutcome{
		Subject:   "07",
		Session:   "2",
		Run:       1,
		Trial:     3,
		Condition: models.TrialCondition{Quadrant: models.QuadrantRight, MotionDurationMs: 200, CueCycles: 2, FixationDelayMs: 512},
		Status:    models.StatusComplete,
		Outcome:   models.OutcomeResponseRecorded,
		TrialType: "test",
		Fixation:  "good",
		Target:    models.TargetTop,
		TargetPos: models.Point{X: 12.5, Y: 4.5},
		Saccade: &models.Saccade{
			Start: models.Point{X: 0.1, Y: -0.2},
			End:   models.Point{X: 12.25, Y: 4.75},
			Ended: true,
		},
		LatencyMs:  215.5,
		DurationMs: 45,
		AbortFrame: -1,
	}

	row := results.Row(o)
	if len(row) != len(results.Header) {
		t.Fatalf("row has %d columns, header %d", len(row), len(results.Header))
	}

	checks := map[string]string{
		"sub":                 "07",
		"quadrant":            "2",
		"n_cue":               "2",
		"saccade_delay":       "512.00",
		"target":              "top",
		"outcome":             "response_recorded",
		"target_pos_x_deg":    "12.50",
		"saccade_epos_y_deg":  "4.75",
		"saccade_latency":     "215.50",
		"saccade_dur":         "45.00",
		"saccade_end_missing": "false",
		"abort_reason":        "",
	}
	for name, want := range checks {
		if got := column(t, row, name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestRowAborted(t *testing.T) {
	o := models.TrialOutcome{
		Subject:     "01",
		Session:     "1",
		Status:      models.StatusAborted,
		Outcome:     models.OutcomeAborted,
		AbortReason: models.AbortSetupFailed,
		Error:       &models.TrialError{Type: models.ErrKinematicsInvalid, Message: "bad"},
		CueFrame:    -1,
	}
	row := results.Row(o)

	if got := column(t, row, "abort_reason"); got != "setup failed" {
		t.Errorf("abort_reason = %q", got)
	}
	if got := column(t, row, "error_type"); got != "invalid_kinematics" {
		t.Errorf("error_type = %q", got)
	}
	if got := column(t, row, "saccade_latency"); got != "" {
		t.Errorf("saccade_latency = %q, want empty", got)
	}
	if got := column(t, row, "saccade_spos_x_deg"); got != "" {
		t.Errorf("saccade_spos_x_deg = %q, want empty", got)
	}
}

func TestCSVSinkFlush(t *testing.T) {
	sink := results.NewCSVSink()
	for i := range 3 {
		if err := sink.AppendRow(models.TrialOutcome{Trial: i, Outcome: models.OutcomeNoResponse}); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "sub-01", "FIPSSaccade", results.RunFileName(1, 1, 1, "FIPSSaccade"))
	if err := sink.Flush(path); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d records", len(records))
	}
	if records[0][0] != "sub" {
		t.Errorf("first header column = %q", records[0][0])
	}

	// existing files are left alone
	if err := sink.Flush(path); err == nil {
		t.Error("expected an error when the run file exists")
	}
}

func TestCSVSinkWriteCSV(t *testing.T) {
	sink := results.NewCSVSink()
	if err := sink.AppendRow(models.TrialOutcome{Trial: 1, Outcome: models.OutcomeNoResponse}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := sink.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if len(records) != 2 || len(records[1]) != len(results.Header) {
		t.Fatalf("got %d records, want header and one row of %d columns", len(records), len(results.Header))
	}
}
