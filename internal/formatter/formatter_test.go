package formatter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	json "github.com/goccy/go-json"
)

var (
	alice = models.PlaylistKey{Owner: "alice", PlaylistID: "PL1"}
	bob   = models.PlaylistKey{Owner: "bob", PlaylistID: "PL2"}
)

func sampleSummary() *tasks.ScanSummary {
	return &tasks.ScanSummary{
		Scanned:   2,
		Queued:    1,
		Skipped:   1,
		Issues:    1,
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Playlists: []tasks.PlaylistScan{
			{
				Key: alice, Outcome: metrics.ScanQueued, Added: 2, Removed: 1, Repairs: 1, JobID: "job-1",
				Issues: []models.ValidationIssue{{Kind: models.IssueZeroByteFiles, Count: 1, Detail: "1 zero-byte media file"}},
			},
			{Key: bob, Outcome: metrics.ScanSkipped, Error: "remote playlist unavailable"},
		},
	}
}

func sampleJob(t *testing.T) *models.SyncJob {
	t.Helper()
	job := models.NewSyncJob(1, alice)
	job.SetID("job-1")
	job.SetStatus(models.JobFailed)
	job.SetAttempts(3)
	job.SetCounts(4, 1, 2)
	job.SetErrorMessage("fetch failed: exit status 1")
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	job.SetStartedAt(&start)
	job.SetFinishedAt(&end)
	return job
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Text},
		{in: "TEXT", want: Text},
		{in: "json", want: JSON},
		{in: "md", want: Markdown},
		{in: "markdown", want: Markdown},
		{in: " csv ", want: CSV},
		{in: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestScanRendering(t *testing.T) {
	summary := sampleSummary()

	t.Run("text", func(t *testing.T) {
		data, err := ScanToText(summary)
		if err != nil {
			t.Fatalf("ScanToText failed: %v", err)
		}
		output := string(data)
		for _, want := range []string{
			"Scanned 2 playlists in 1.5s",
			"queued: 1",
			"alice/PL1  +2 -1 (repair 1)  job job-1",
			"! zero_byte_files: 1 zero-byte media file",
			"skipped   bob/PL2",
			"error: remote playlist unavailable",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text output missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("markdown", func(t *testing.T) {
		data, err := ScanToMarkdown(summary)
		if err != nil {
			t.Fatalf("ScanToMarkdown failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "**Started**: 2025-03-01T12:00:00Z") {
			t.Errorf("markdown missing start time, got:\n%s", output)
		}
		if !strings.Contains(output, "| alice/PL1 | queued | 2 | 1 | 1 | 1 | job-1 |") {
			t.Errorf("markdown missing playlist row, got:\n%s", output)
		}
	})

	t.Run("csv", func(t *testing.T) {
		data, err := ScanToCSV(summary)
		if err != nil {
			t.Fatalf("ScanToCSV failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if lines[0] != "Owner,PlaylistID,Outcome,Added,Removed,Repairs,Issues,JobID,Error" {
			t.Errorf("unexpected header: %s", lines[0])
		}
		if lines[1] != "alice,PL1,queued,2,1,1,1,job-1," {
			t.Errorf("unexpected row: %s", lines[1])
		}
	})

	t.Run("json", func(t *testing.T) {
		data, err := Render(JSON, summary)
		if err != nil {
			t.Fatalf("Render(JSON) failed: %v", err)
		}
		var decoded struct {
			Scanned   int `json:"scanned"`
			Playlists []struct {
				Key struct {
					Owner string `json:"owner"`
				} `json:"key"`
				Outcome string `json:"outcome"`
			} `json:"playlists"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Scanned != 2 || decoded.Playlists[0].Key.Owner != "alice" || decoded.Playlists[1].Outcome != "skipped" {
			t.Errorf("unexpected decoded summary: %+v", decoded)
		}
	})
}

func TestReportRendering(t *testing.T) {
	report := &models.ValidationReport{Key: alice}

	data, err := ReportToText(report)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alice/PL1: no issues\n" {
		t.Errorf("unexpected empty report: %q", data)
	}

	issue := report.Add(models.IssueZeroByteFiles, 1, "1 zero-byte media file")
	issue.Files = []string{"Uploader - Song [A].mp3"}
	issue.Items = []models.ItemID{"A"}

	data, err = ReportToText(report)
	if err != nil {
		t.Fatal(err)
	}
	output := string(data)
	for _, want := range []string{"1 issue(s)", "zero_byte_files (1)", "- Uploader - Song [A].mp3", "items: A"} {
		if !strings.Contains(output, want) {
			t.Errorf("text report missing %q, got:\n%s", want, output)
		}
	}

	data, err = ReportToMarkdown(report)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "## zero_byte_files") || !strings.Contains(string(data), "**Items**: A") {
		t.Errorf("unexpected markdown report:\n%s", data)
	}
}

func TestJobRendering(t *testing.T) {
	job := sampleJob(t)

	t.Run("text", func(t *testing.T) {
		data, err := JobsToText([]*models.SyncJob{job})
		if err != nil {
			t.Fatal(err)
		}
		output := string(data)
		for _, want := range []string{"job-1", "failed", "alice/PL1", "attempts=3", "fetched=4", "removed=1/2", "took=2s", "error: fetch failed"} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		data, _ := JobsToText(nil)
		if string(data) != "No jobs\n" {
			t.Errorf("unexpected output: %q", data)
		}
	})

	t.Run("csv", func(t *testing.T) {
		data, err := JobsToCSV([]*models.SyncJob{job})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "job-1,alice,PL1,failed,3,4,1,2,fetch failed: exit status 1") {
			t.Errorf("unexpected CSV:\n%s", data)
		}
	})

	t.Run("json uses the view", func(t *testing.T) {
		data, err := Render(JSON, job)
		if err != nil {
			t.Fatal(err)
		}
		var view JobView
		if err := json.Unmarshal(data, &view); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if view.ID != "job-1" || view.Status != models.JobFailed || view.RemovedFiles != 2 || view.FinishedAt == nil {
			t.Errorf("unexpected view: %+v", view)
		}
	})
}

func TestPlaylistAndUserRendering(t *testing.T) {
	active := models.NewPlaylist(1, "alice", "PL1", "Road Trip", "https://www.youtube.com/playlist?list=PL1")
	active.SetActive(true)
	synced := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	active.SetLastSyncedAt(&synced)
	pending := models.NewPlaylist(2, "bob", "PL2", "Pending", "ref")

	data, err := PlaylistsToText([]*models.Playlist{active, pending})
	if err != nil {
		t.Fatal(err)
	}
	output := string(data)
	if !strings.Contains(output, `active   alice/PL1  "Road Trip"  synced: 2025-03-01T12:00:00Z`) {
		t.Errorf("missing active playlist line, got:\n%s", output)
	}
	if !strings.Contains(output, "synced: never") {
		t.Errorf("pending playlist should show never synced, got:\n%s", output)
	}

	data, err = PlaylistsToCSV([]*models.Playlist{active})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "alice,PL1,Road Trip,https://www.youtube.com/playlist?list=PL1,true,2025-03-01T12:00:00Z") {
		t.Errorf("unexpected CSV:\n%s", data)
	}

	user := models.NewUser(1, "alice", "alice@example.com")
	data, err = Render(Text, []*models.User{user})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "active   alice <alice@example.com>\n" {
		t.Errorf("unexpected user line: %q", data)
	}
}

func TestOutcomeToText(t *testing.T) {
	data, err := Render(Text, &reconcile.Outcome{
		Key: alice, Fetched: 1, RemovedEntries: 1, RemovedFiles: 2, DeleteErrors: 1,
		ItemErrors: []string{"[youtube] C: Video unavailable"}, Duration: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	output := string(data)
	for _, want := range []string{"Reconciled alice/PL1 in 1s", "fetched: 1", "files removed: 2", "delete errors: 1", "! [youtube] C: Video unavailable"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q, got:\n%s", want, output)
		}
	}
}

func TestHealthToText(t *testing.T) {
	statuses := []fetcher.Status{
		{Name: "yt-dlp", Command: "yt-dlp", Available: true, Version: "2025.01.15"},
		{Name: "FFmpeg", Command: "ffmpeg", Detail: `binary "ffmpeg" not found`},
	}
	h := NewHealth(statuses, time.Now())
	h.Breaker = "closed"
	h.LastScanError = "database is locked"

	if h.Ready {
		t.Error("missing required binary should make the report not ready")
	}

	data, err := Render(Text, h)
	if err != nil {
		t.Fatal(err)
	}
	output := string(data)
	for _, want := range []string{"Status: not ready", "ok      yt-dlp   yt-dlp (2025.01.15)", "missing FFmpeg", "Remote breaker: closed", "Last scan error: database is locked"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q, got:\n%s", want, output)
		}
	}
}

func TestRenderUnsupported(t *testing.T) {
	if _, err := Render(Text, 42); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
