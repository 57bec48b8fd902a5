package executor_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fipslab/fips/internal/config"
	"github.com/fipslab/fips/internal/executor"
	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/results"
)

var testDataDir = flag.String("test.datadir", "", "directory to preserve test session outputs (default: temp dir)")

// getDataDir returns the data directory for tests.
// If -test.datadir flag is set, uses that directory, otherwise creates a temp dir.
func getDataDir(t *testing.T) string {
	if *testDataDir != "" {
		absPath, err := filepath.Abs(*testDataDir)
		if err != nil {
			t.Fatalf("getting absolute path for data dir: %v", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			t.Fatalf("creating data dir: %v", err)
		}
		return absPath
	}
	return t.TempDir()
}

// scriptedRunner answers from a function of the condition.
type scriptedRunner struct {
	outcome func(cond models.TrialCondition) (*models.TrialOutcome, error)
	seen    []models.TrialCondition
}

func (r *scriptedRunner) Execute(ctx context.Context, cond models.TrialCondition) (*models.TrialOutcome, error) {
	r.seen = append(r.seen, cond)
	return r.outcome(cond)
}

func completed(cond models.TrialCondition) *models.TrialOutcome {
	return &models.TrialOutcome{
		Run:        cond.Block + 1,
		Trial:      cond.Index,
		Attempt:    cond.Attempt,
		Condition:  cond,
		Status:     models.StatusComplete,
		Outcome:    models.OutcomeNoResponse,
		Target:     cond.Target,
		AbortFrame: -1,
	}
}

func aborted(cond models.TrialCondition, reason models.AbortReason) *models.TrialOutcome {
	out := completed(cond)
	out.Status = models.StatusAborted
	out.Outcome = models.OutcomeAborted
	out.AbortReason = reason
	return out
}

type fakeSource struct {
	conds  []models.TrialCondition
	next   int
	budget int
}

func newSource(block, n, budget int) *fakeSource {
	s := &fakeSource{budget: budget}
	for i := range n {
		s.conds = append(s.conds, models.TrialCondition{
			Block:            block,
			Index:            i,
			Quadrant:         models.Quadrant(1 + i%2),
			MotionDurationMs: 200,
			Target:           models.TargetTop,
		})
	}
	return s
}

func (s *fakeSource) Next() (models.TrialCondition, bool) {
	if s.next >= len(s.conds) {
		return models.TrialCondition{}, false
	}
	s.next++
	return s.conds[s.next-1], true
}

func (s *fakeSource) Requeue(c models.TrialCondition) bool {
	if s.budget == 0 {
		return false
	}
	s.budget--
	c.Attempt++
	c.Index = len(s.conds)
	s.conds = append(s.conds, c)
	return true
}

func sessionConfig(t *testing.T) models.ExperimentConfig {
	cfg := config.DefaultExperimentConfig()
	cfg.DataDir = getDataDir(t)
	cfg.Subject = 5
	cfg.Task = "TestTask"
	return cfg
}

func csvSink() executor.ResultSink {
	return results.NewCSVSink()
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows[1:]
}

func runPath(cfg models.ExperimentConfig, run int) string {
	return filepath.Join(results.TaskDir(cfg.DataDir, cfg.Subject, cfg.Task),
		results.RunFileName(cfg.Subject, cfg.Session, run, cfg.Task))
}

func TestSessionRequeuesAbortedTrials(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		if c.Index == 1 && c.Attempt == 0 {
			return aborted(c, models.AbortBadFixation), nil
		}
		return completed(c), nil
	}}

	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{Seed: 9}, runner, csvSink)
	sr, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 3, 5)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sr.TotalTrials != 4 || sr.AbortedTrials != 1 || sr.CompletedTrials != 3 {
		t.Errorf("totals = %d/%d/%d, want 4 total, 1 aborted, 3 completed",
			sr.TotalTrials, sr.AbortedTrials, sr.CompletedTrials)
	}
	if sr.RequeuedTrials != 1 {
		t.Errorf("requeued = %d, want 1", sr.RequeuedTrials)
	}
	if sr.AbortReasons[models.AbortBadFixation] != 1 {
		t.Errorf("abort reasons = %v", sr.AbortReasons)
	}
	if sr.Seed != 9 || sr.SessionID == "" || sr.Cancelled {
		t.Errorf("seed/id/cancelled = %d/%q/%v", sr.Seed, sr.SessionID, sr.Cancelled)
	}

	last := runner.seen[len(runner.seen)-1]
	if last.Index != 3 || last.Attempt != 1 {
		t.Errorf("requeued condition ran as index %d attempt %d, want 3/1", last.Index, last.Attempt)
	}

	rows := readRows(t, runPath(cfg, 1))
	if len(rows) != 4 {
		t.Errorf("run file has %d rows, want 4", len(rows))
	}

	sessionPath := filepath.Join(results.TaskDir(cfg.DataDir, cfg.Subject, cfg.Task),
		results.SessionFileName(cfg.Subject, cfg.Session, cfg.Task, "session", "json"))
	data, err := os.ReadFile(sessionPath)
	if err != nil {
		t.Fatalf("reading session summary: %v", err)
	}
	var saved models.SessionResult
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("parsing session summary: %v", err)
	}
	if saved.SessionID != sr.SessionID || saved.TotalTrials != 4 {
		t.Errorf("saved summary = %s/%d", saved.SessionID, saved.TotalTrials)
	}
}

func TestSessionDoesNotRequeueSetupFailures(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		if c.Index == 0 {
			return aborted(c, models.AbortSetupFailed), nil
		}
		return nil, errors.New("renderer went away")
	}}

	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	sr, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 2, 5)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sr.RequeuedTrials != 0 || len(runner.seen) != 2 {
		t.Errorf("requeued %d, ran %d trials; setup and internal failures must not repeat",
			sr.RequeuedTrials, len(runner.seen))
	}
	if sr.AbortedTrials != 2 {
		t.Errorf("aborted = %d, want 2", sr.AbortedTrials)
	}

	rows := readRows(t, runPath(cfg, 1))
	errCol := -1
	for i, h := range results.Header {
		if h == "error_type" {
			errCol = i
		}
	}
	if got := rows[1][errCol]; got != string(models.ErrInternalError) {
		t.Errorf("error_type of failed runner = %q, want %s", got, models.ErrInternalError)
	}
}

func TestSessionEscapeStopsSession(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		if c.Block == 0 && c.Index == 1 {
			return aborted(c, models.AbortUserEscape), nil
		}
		return completed(c), nil
	}}

	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	sr, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 4, 5), newSource(1, 4, 5)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !sr.Cancelled {
		t.Error("session not marked cancelled")
	}
	if sr.TotalTrials != 2 || sr.RequeuedTrials != 0 {
		t.Errorf("total/requeued = %d/%d, want 2/0", sr.TotalTrials, sr.RequeuedTrials)
	}
	if rows := readRows(t, runPath(cfg, 1)); len(rows) != 2 {
		t.Errorf("run 1 has %d rows, want 2", len(rows))
	}
	if _, err := os.Stat(runPath(cfg, 2)); !os.IsNotExist(err) {
		t.Errorf("run 2 file written after escape: %v", err)
	}
}

func TestSessionCancelledContext(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		return completed(c), nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	sr, err := o.Run(ctx, []executor.ConditionSource{newSource(0, 3, 0)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !sr.Cancelled || sr.TotalTrials != 0 || len(runner.seen) != 0 {
		t.Errorf("cancelled=%v total=%d ran=%d", sr.Cancelled, sr.TotalTrials, len(runner.seen))
	}
}

func TestSessionQuadrantSummaries(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		out := completed(c)
		out.Outcome = models.OutcomeResponseRecorded
		out.TargetPos = models.Point{X: 10, Y: 4}
		out.LatencyMs = float64(200 + 10*c.Index)
		out.Saccade = &models.Saccade{
			End:   models.Point{X: 10 + float64(c.Index), Y: 3},
			Ended: true,
		}
		return out, nil
	}}

	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	// quadrants alternate left, right, left, right
	sr, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 4, 0)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sr.ResponseTrials != 4 || sr.MeanLatencyMs != 215 {
		t.Errorf("responses/latency = %d/%.1f, want 4/215", sr.ResponseTrials, sr.MeanLatencyMs)
	}

	tests := []struct {
		q       models.Quadrant
		latency float64
		errX    float64
	}{
		{q: models.QuadrantLeft, latency: 210, errX: 1},
		{q: models.QuadrantRight, latency: 220, errX: 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("quadrant %d", tt.q), func(t *testing.T) {
			qs, ok := sr.Quadrants[tt.q]
			if !ok {
				t.Fatalf("no summary for quadrant %d", tt.q)
			}
			if qs.TotalTrials != 2 || qs.ResponseTrials != 2 {
				t.Errorf("counts = %d/%d, want 2/2", qs.TotalTrials, qs.ResponseTrials)
			}
			if qs.MeanLatencyMs != tt.latency {
				t.Errorf("latency = %.1f, want %.1f", qs.MeanLatencyMs, tt.latency)
			}
			if math.Abs(qs.MeanErrorXDeg-tt.errX) > 1e-9 || math.Abs(qs.MeanErrorYDeg+1) > 1e-9 {
				t.Errorf("landing error = (%.2f, %.2f), want (%.2f, -1)", qs.MeanErrorXDeg, qs.MeanErrorYDeg, tt.errX)
			}
		})
	}
}

func TestSessionOverwriteProtection(t *testing.T) {
	cfg := sessionConfig(t)
	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		return completed(c), nil
	}}

	// First run - should succeed
	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	if _, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 1, 0)}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Second run for the same subject and session - should fail
	o2 := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	result2, err := o2.Run(context.Background(), []executor.ConditionSource{newSource(0, 1, 0)})
	if err == nil {
		t.Fatal("expected error on second run, but got none")
	}
	if result2 != nil {
		t.Error("expected nil result on error, but got result")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected error about existing output, got: %s", err)
	}
}

func TestSessionConfigWriteFailureIsLogged(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var logs bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))

	cfg := sessionConfig(t)
	// a directory where the config echo should go makes the write fail
	dir := results.TaskDir(cfg.DataDir, cfg.Subject, cfg.Task)
	configPath := filepath.Join(dir, results.SessionFileName(cfg.Subject, cfg.Session, cfg.Task, "config", "json"))
	if err := os.MkdirAll(configPath, 0755); err != nil {
		t.Fatal(err)
	}

	runner := &scriptedRunner{outcome: func(c models.TrialCondition) (*models.TrialOutcome, error) {
		return completed(c), nil
	}}
	o := executor.NewSessionOrchestrator(cfg, executor.SessionInfo{}, runner, csvSink)
	sr, err := o.Run(context.Background(), []executor.ConditionSource{newSource(0, 2, 0)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sr.TotalTrials != 2 {
		t.Errorf("total trials = %d, want 2", sr.TotalTrials)
	}
	if !strings.Contains(logs.String(), "failed to save experiment config") {
		t.Errorf("config write failure not logged: %s", logs.String())
	}
}

func TestRunFromConfigSimulated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	dataDir := getDataDir(t)
	configPath := filepath.Join(dir, "experiment.yaml")
	yaml := fmt.Sprintf(`name: sim-check
task: FIPSSaccade
subject: 12
session: 1
data_dir: %q
seed: 7
monitor: bench
report: true
timing:
  motion_durations_ms: [150, 250]
  stabilization_cycles: 2
design:
  blocks: 2
  total_trials: 2
  requeue_aborted: true
  max_requeues: 3
`, dataDir)
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	monitors := `[monitors.bench]
size_cm = [40.0, 30.0]
size_px = [1024, 768]
`
	if err := os.WriteFile(filepath.Join(dir, "monitors.toml"), []byte(monitors), 0644); err != nil {
		t.Fatal(err)
	}

	sr, err := executor.RunFromConfig(context.Background(), configPath)
	if err != nil {
		t.Fatalf("RunFromConfig failed: %v", err)
	}

	// 2 quadrants x 2 durations x 2 targets, once per block
	if want := 16 + sr.RequeuedTrials; sr.TotalTrials != want {
		t.Errorf("total trials = %d, want %d", sr.TotalTrials, want)
	}
	if sr.Monitor != "bench" || sr.RefreshRate != 60 || sr.Seed != 7 {
		t.Errorf("monitor/refresh/seed = %s/%.0f/%d", sr.Monitor, sr.RefreshRate, sr.Seed)
	}
	if sr.ResponseTrials == 0 {
		t.Error("simulated participant never responded")
	}

	// two run files, the report and the summary
	if len(sr.Files) != 4 {
		t.Fatalf("files = %v, want 4", sr.Files)
	}
	rows := 0
	for _, f := range sr.Files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("missing output %s: %v", f, err)
		}
		if strings.HasSuffix(f, ".csv") {
			rows += len(readRows(t, f))
		}
	}
	if rows != sr.TotalTrials {
		t.Errorf("run files hold %d rows, want %d", rows, sr.TotalTrials)
	}

	t.Logf("session %s: %d trials, %d responses, %d aborted, mean latency %.1fms",
		sr.SessionID, sr.TotalTrials, sr.ResponseTrials, sr.AbortedTrials, sr.MeanLatencyMs)
}
