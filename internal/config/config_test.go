package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsFill(t *testing.T) {
	path := writeConfig(t, "replay:\n  events_jsonl: fixtures/events.jsonl\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "replay" {
		t.Fatalf("default mode: want replay, got %q", cfg.Mode)
	}
	if cfg.StartingCapital != 100000 {
		t.Fatalf("default capital: got %v", cfg.StartingCapital)
	}
	if cfg.Risk.StopLossPct != 0.05 || cfg.Risk.MinConfidence != 0.55 {
		t.Fatalf("risk defaults: %+v", cfg.Risk)
	}
	if cfg.Exits.StopLossPct != cfg.Risk.StopLossPct {
		t.Fatalf("exit stop loss should inherit risk stop loss, got %v", cfg.Exits.StopLossPct)
	}
	if cfg.Location == nil {
		t.Fatal("location not parsed")
	}
}

func TestLoad_ReplayModeDisablesLiveStages(t *testing.T) {
	path := writeConfig(t, "mode: replay\nreplay:\n  events_jsonl: fixtures/events.jsonl\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg.Scorer.Stages.FreshnessEnabled || *cfg.Scorer.Stages.TimeOfDayEnabled {
		t.Fatal("replay preset must default freshness and time-of-day off")
	}
}

func TestLoad_PaperModeEnablesLiveStages(t *testing.T) {
	path := writeConfig(t, "mode: paper\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !*cfg.Scorer.Stages.FreshnessEnabled || !*cfg.Scorer.Stages.TimeOfDayEnabled {
		t.Fatal("paper preset must default freshness and time-of-day on")
	}
}

func TestLoad_ExplicitStageToggleBeatsPreset(t *testing.T) {
	path := writeConfig(t, `
mode: paper
scorer:
  stages:
    freshness_enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg.Scorer.Stages.FreshnessEnabled {
		t.Fatal("explicit false must survive the paper preset")
	}
	if !*cfg.Scorer.Stages.TimeOfDayEnabled {
		t.Fatal("unset toggle must still take the preset")
	}
}

func TestLoadForMode_OverridesFileMode(t *testing.T) {
	path := writeConfig(t, "mode: replay\nreplay:\n  events_jsonl: fixtures/events.jsonl\n")
	cfg, err := LoadForMode(path, "paper")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "paper" {
		t.Fatalf("mode: want paper, got %q", cfg.Mode)
	}
	if !*cfg.Scorer.Stages.FreshnessEnabled {
		t.Fatal("forced paper mode must apply the paper stage preset")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad mode", "mode: dryrun\n", "mode must be replay or paper"},
		{"pct out of range", "mode: paper\nrisk:\n  stop_loss_pct: 1.5\n", "stop_loss_pct"},
		{"bad window", "mode: paper\nscorer:\n  window_open: \"25:99\"\n", "trading window"},
		{"bad timezone", "mode: paper\ntimezone: Mars/Olympus\n", "timezone"},
		{"replay without data", "mode: replay\n", "replay mode requires"},
		{"inverted range", "mode: paper\nreplay:\n  from: \"2025-02-01T00:00:00Z\"\n  to: \"2025-01-01T00:00:00Z\"\n", "before replay.from"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			if err == nil {
				t.Fatal("want error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_ParsesReplayRange(t *testing.T) {
	path := writeConfig(t, `
mode: replay
replay:
  events_jsonl: fixtures/events.jsonl
  from: "2025-01-06T00:00:00Z"
  to: "2025-01-10T00:00:00Z"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ReplayFrom.IsZero() || cfg.ReplayTo.IsZero() {
		t.Fatal("replay range not parsed")
	}
	if !cfg.ReplayFrom.Before(cfg.ReplayTo) {
		t.Fatal("replay range inverted after parse")
	}
}
