package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"voxtape/internal/capture"
	"voxtape/internal/daemon"
	"voxtape/internal/ipc"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Voxtape", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Voxtape:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Voxtape", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := map[string]statusKind{
		"ok":    statusOK,
		" WARN": statusWarn,
		"error": statusError,
		"info":  statusInfo,
		"":      statusInfo,
	}
	for in, want := range cases {
		if got := statusKindFromSeverity(in); got != want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{65 * time.Second, "1:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Fatalf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildActiveRows(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := buildActiveRows([]ipc.ActiveRecording{
		{
			Snapshot: capture.Snapshot{
				ID:           "rec-1",
				State:        "recording",
				StartedAt:    start,
				BytesWritten: 2048,
				Ceiling:      4096,
				Tracks:       []capture.TrackInfo{{Number: 1}, {Number: 2}},
			},
			BridgeEnabled: true,
			BridgePeers:   3,
		},
		{Snapshot: capture.Snapshot{ID: "rec-2", StartedAt: start}},
	}, start.Add(90*time.Second))

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first[0] != "rec-1" || first[3] != "1:30" || first[4] != "2" {
		t.Fatalf("unexpected row %v", first)
	}
	if first[5] != "2.0 KiB / 4.0 KiB" || first[6] != "3 peers" {
		t.Fatalf("unexpected size/bridge columns %v", first)
	}
	if rows[1][6] != "off" {
		t.Fatalf("expected bridge off, got %v", rows[1])
	}
}

func TestBuildStatusCountRowsSorted(t *testing.T) {
	rows := buildStatusCountRows(map[string]int{"failed": 1, "ended": 4})
	if len(rows) != 2 || rows[0][0] != "Ended" || rows[1][1] != "1" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if buildStatusCountRows(nil) != nil {
		t.Fatal("expected nil rows for empty stats")
	}
}

func TestTableViewAlignsMeasuredColumns(t *testing.T) {
	out := tableView{
		columns: []column{{title: "Name"}, {title: "Size", measured: true}},
		rows:    [][]string{{"a", "1"}, {"b", "100"}, {"c"}},
		footer:  []string{"", "101"},
	}.render()

	if !strings.Contains(out, "│ a    │    1 │") {
		t.Fatalf("measured cell should be right aligned:\n%s", out)
	}
	if !strings.Contains(out, "│ c    │      │") {
		t.Fatalf("short row should be padded:\n%s", out)
	}
	if !strings.Contains(out, "│  101 │") {
		t.Fatalf("footer missing or misaligned:\n%s", out)
	}
	if (tableView{}).render() != "" {
		t.Fatal("table without columns should render empty")
	}
}

func TestRecordingTotals(t *testing.T) {
	recs := []ipc.Recording{
		{RecordingView: daemon.RecordingView{ID: "a", DurationMS: 60_000, Tracks: 2, BytesWritten: 1024}},
		{RecordingView: daemon.RecordingView{ID: "b", DurationMS: 5_000, Tracks: 1, BytesWritten: 1024}},
	}
	got := recordingTotals(recs)
	want := []string{"2 recordings", "", "", "1:05", "3", "2.0 KiB", ""}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("totals = %q, want %q", got, want)
	}
	if cols := recordingColumns("Status", "Duration", "Size"); len(cols) != len(got) {
		t.Fatalf("totals cover %d of %d columns", len(got), len(cols))
	}
}
