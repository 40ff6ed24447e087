// package formatter renders scan summaries, validation reports, jobs and health checks as
// plain text, JSON, Markdown or CSV.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	json "github.com/goccy/go-json"
)

// Format names an output encoding.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	Markdown Format = "markdown"
	CSV      Format = "csv"
)

// ParseFormat accepts text, json, markdown (or md) and csv, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// ToJSON encodes v, indented when pretty is set. The output ends with a newline.
func ToJSON(v any, pretty bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Render encodes v in the given format.
//
// Supported values are *tasks.ScanSummary, *models.ValidationReport, *reconcile.Outcome,
// []*models.SyncJob, *models.SyncJob, []*models.Playlist, []*models.User and *Health. JSON
// accepts anything.
func Render(format Format, v any) ([]byte, error) {
	if format == JSON {
		return ToJSON(jsonValue(v), true)
	}

	switch v := v.(type) {
	case *tasks.ScanSummary:
		switch format {
		case Markdown:
			return ScanToMarkdown(v)
		case CSV:
			return ScanToCSV(v)
		}
		return ScanToText(v)
	case *models.ValidationReport:
		if format == Markdown {
			return ReportToMarkdown(v)
		}
		return ReportToText(v)
	case *reconcile.Outcome:
		return OutcomeToText(v)
	case *models.SyncJob:
		return JobsToText([]*models.SyncJob{v})
	case []*models.SyncJob:
		switch format {
		case Markdown:
			return JobsToMarkdown(v)
		case CSV:
			return JobsToCSV(v)
		}
		return JobsToText(v)
	case []*models.Playlist:
		if format == CSV {
			return PlaylistsToCSV(v)
		}
		return PlaylistsToText(v)
	case []*models.User:
		return UsersToText(v)
	case *Health:
		return HealthToText(v)
	}
	return nil, fmt.Errorf("%w: cannot render %T as %s", shared.ErrInvalidArgument, v, format)
}

// jsonValue swaps entity types for their views; entities keep their fields unexported.
func jsonValue(v any) any {
	switch v := v.(type) {
	case *models.SyncJob:
		return NewJobView(v)
	case []*models.SyncJob:
		views := make([]JobView, len(v))
		for i, j := range v {
			views[i] = NewJobView(j)
		}
		return views
	case []*models.Playlist:
		views := make([]PlaylistView, len(v))
		for i, p := range v {
			views[i] = NewPlaylistView(p)
		}
		return views
	case []*models.User:
		views := make([]UserView, len(v))
		for i, u := range v {
			views[i] = NewUserView(u)
		}
		return views
	}
	return v
}

// ScanToText renders a summary line followed by one line per scanned playlist.
func ScanToText(s *tasks.ScanSummary) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Scanned %d playlists in %s\n", s.Scanned, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  queued: %d  in sync: %d  skipped: %d  failed: %d  issues: %d\n\n",
		s.Queued, s.InSync, s.Skipped, s.Failed, s.Issues)

	for _, p := range s.Playlists {
		fmt.Fprintf(&buf, "%-9s %s  +%d -%d", p.Outcome, p.Key, p.Added, p.Removed)
		if p.Repairs > 0 {
			fmt.Fprintf(&buf, " (repair %d)", p.Repairs)
		}
		if p.JobID != "" {
			fmt.Fprintf(&buf, "  job %s", p.JobID)
		}
		if p.Error != "" {
			fmt.Fprintf(&buf, "  error: %s", p.Error)
		}
		buf.WriteString("\n")
		for _, issue := range p.Issues {
			fmt.Fprintf(&buf, "          ! %s: %s\n", issue.Kind, issue.Detail)
		}
	}

	return buf.Bytes(), nil
}

// ScanToMarkdown renders the summary as a table.
func ScanToMarkdown(s *tasks.ScanSummary) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Scan\n\n")
	fmt.Fprintf(&buf, "**Started**: %s\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Duration**: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "**Scanned**: %d (queued %d, in sync %d, skipped %d, failed %d)\n\n",
		s.Scanned, s.Queued, s.InSync, s.Skipped, s.Failed)

	buf.WriteString("| Playlist | Outcome | Added | Removed | Repairs | Issues | Job |\n")
	buf.WriteString("|---|---|---|---|---|---|---|\n")
	for _, p := range s.Playlists {
		fmt.Fprintf(&buf, "| %s | %s | %d | %d | %d | %d | %s |\n",
			p.Key, p.Outcome, p.Added, p.Removed, p.Repairs, len(p.Issues), p.JobID)
	}

	return buf.Bytes(), nil
}

// ScanToCSV converts a summary to CSV with columns: Owner, PlaylistID, Outcome, Added, Removed, Repairs, Issues, JobID, Error
func ScanToCSV(s *tasks.ScanSummary) ([]byte, error) {
	headers := []string{"Owner", "PlaylistID", "Outcome", "Added", "Removed", "Repairs", "Issues", "JobID", "Error"}
	records := make([][]string, 0, len(s.Playlists))
	for _, p := range s.Playlists {
		records = append(records, []string{
			p.Key.Owner,
			p.Key.PlaylistID,
			p.Outcome,
			strconv.Itoa(p.Added),
			strconv.Itoa(p.Removed),
			strconv.Itoa(p.Repairs),
			strconv.Itoa(len(p.Issues)),
			p.JobID,
			p.Error,
		})
	}
	return writeCSV(headers, records)
}

// ReportToText lists each validation issue with the files and items it involves.
func ReportToText(r *models.ValidationReport) ([]byte, error) {
	var buf bytes.Buffer

	if r.Empty() {
		fmt.Fprintf(&buf, "%s: no issues\n", r.Key)
		return buf.Bytes(), nil
	}

	fmt.Fprintf(&buf, "%s: %d issue(s)\n", r.Key, len(r.Issues))
	for _, issue := range r.Issues {
		fmt.Fprintf(&buf, "  %s (%d): %s\n", issue.Kind, issue.Count, issue.Detail)
		for _, f := range issue.Files {
			fmt.Fprintf(&buf, "    - %s\n", f)
		}
		if len(issue.Items) > 0 {
			fmt.Fprintf(&buf, "    items: %s\n", joinIDs(issue.Items))
		}
	}

	return buf.Bytes(), nil
}

func ReportToMarkdown(r *models.ValidationReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", r.Key)
	if r.Empty() {
		buf.WriteString("No issues found.\n")
		return buf.Bytes(), nil
	}

	for _, issue := range r.Issues {
		fmt.Fprintf(&buf, "## %s\n\n%s\n\n", issue.Kind, issue.Detail)
		for _, f := range issue.Files {
			fmt.Fprintf(&buf, "- `%s`\n", f)
		}
		if len(issue.Files) > 0 {
			buf.WriteString("\n")
		}
		if len(issue.Items) > 0 {
			fmt.Fprintf(&buf, "**Items**: %s\n\n", joinIDs(issue.Items))
		}
	}

	return buf.Bytes(), nil
}

// OutcomeToText renders the counters of one reconciliation.
func OutcomeToText(o *reconcile.Outcome) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Reconciled %s in %s\n", o.Key, o.Duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  fetched: %d\n", o.Fetched)
	fmt.Fprintf(&buf, "  archive entries removed: %d\n", o.RemovedEntries)
	fmt.Fprintf(&buf, "  files removed: %d\n", o.RemovedFiles)
	if o.DeleteErrors > 0 {
		fmt.Fprintf(&buf, "  delete errors: %d\n", o.DeleteErrors)
	}
	for _, e := range o.ItemErrors {
		fmt.Fprintf(&buf, "  ! %s\n", e)
	}

	return buf.Bytes(), nil
}

func JobsToText(jobs []*models.SyncJob) ([]byte, error) {
	var buf bytes.Buffer

	if len(jobs) == 0 {
		buf.WriteString("No jobs\n")
		return buf.Bytes(), nil
	}

	for _, j := range jobs {
		fmt.Fprintf(&buf, "%s  %-9s %s  attempts=%d fetched=%d removed=%d/%d",
			j.ID(), j.Status(), j.Key(), j.Attempts(), j.Fetched(), j.RemovedEntries(), j.RemovedFiles())
		if d, ok := jobDuration(j); ok {
			fmt.Fprintf(&buf, " took=%s", d)
		}
		if j.ErrorMessage() != "" {
			fmt.Fprintf(&buf, "\n    error: %s", j.ErrorMessage())
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func JobsToMarkdown(jobs []*models.SyncJob) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("| Job | Playlist | Status | Attempts | Fetched | Removed | Error |\n")
	buf.WriteString("|---|---|---|---|---|---|---|\n")
	for _, j := range jobs {
		fmt.Fprintf(&buf, "| %s | %s | %s | %d | %d | %d | %s |\n",
			j.ID(), j.Key(), j.Status(), j.Attempts(), j.Fetched(), j.RemovedEntries(), j.ErrorMessage())
	}

	return buf.Bytes(), nil
}

// JobsToCSV converts jobs to CSV with columns: ID, Owner, PlaylistID, Status, Attempts, Fetched, RemovedEntries, RemovedFiles, Error
func JobsToCSV(jobs []*models.SyncJob) ([]byte, error) {
	headers := []string{"ID", "Owner", "PlaylistID", "Status", "Attempts", "Fetched", "RemovedEntries", "RemovedFiles", "Error"}
	records := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, []string{
			j.ID(),
			j.Owner(),
			j.PlaylistID(),
			string(j.Status()),
			strconv.Itoa(j.Attempts()),
			strconv.Itoa(j.Fetched()),
			strconv.Itoa(j.RemovedEntries()),
			strconv.Itoa(j.RemovedFiles()),
			j.ErrorMessage(),
		})
	}
	return writeCSV(headers, records)
}

func PlaylistsToText(playlists []*models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	if len(playlists) == 0 {
		buf.WriteString("No playlists\n")
		return buf.Bytes(), nil
	}

	for _, p := range playlists {
		state := "inactive"
		if p.Active() {
			state = "active"
		}
		synced := "never"
		if t := p.LastSyncedAt(); t != nil {
			synced = t.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&buf, "%-8s %s  %q  synced: %s\n", state, p.Key(), p.Name(), synced)
	}

	return buf.Bytes(), nil
}

// PlaylistsToCSV converts playlists to CSV with columns: Owner, PlaylistID, Name, RemoteRef, Active, LastSyncedAt
func PlaylistsToCSV(playlists []*models.Playlist) ([]byte, error) {
	headers := []string{"Owner", "PlaylistID", "Name", "RemoteRef", "Active", "LastSyncedAt"}
	records := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		synced := ""
		if t := p.LastSyncedAt(); t != nil {
			synced = t.UTC().Format(time.RFC3339)
		}
		records = append(records, []string{
			p.Owner(),
			p.PlaylistID(),
			p.Name(),
			p.RemoteRef(),
			strconv.FormatBool(p.Active()),
			synced,
		})
	}
	return writeCSV(headers, records)
}

func UsersToText(users []*models.User) ([]byte, error) {
	var buf bytes.Buffer

	if len(users) == 0 {
		buf.WriteString("No users\n")
		return buf.Bytes(), nil
	}

	for _, u := range users {
		state := "inactive"
		if u.Active() {
			state = "active"
		}
		fmt.Fprintf(&buf, "%-8s %s <%s>\n", state, u.Name(), u.Email())
	}

	return buf.Bytes(), nil
}

// HealthToText renders binary availability, breaker state and the last scan.
func HealthToText(h *Health) ([]byte, error) {
	var buf bytes.Buffer

	state := "ready"
	if !h.Ready {
		state = "not ready"
	}
	fmt.Fprintf(&buf, "Status: %s\n\n", state)

	for _, s := range h.Binaries {
		mark := "ok"
		if !s.Available {
			mark = "missing"
		}
		fmt.Fprintf(&buf, "  %-7s %-8s %s", mark, s.Name, s.Command)
		if s.Version != "" {
			fmt.Fprintf(&buf, " (%s)", s.Version)
		}
		if s.Detail != "" {
			fmt.Fprintf(&buf, " - %s", s.Detail)
		}
		buf.WriteString("\n")
	}

	if h.Breaker != "" {
		fmt.Fprintf(&buf, "\nRemote breaker: %s\n", h.Breaker)
	}
	if h.LastScan != nil {
		fmt.Fprintf(&buf, "Last scan: %s, %d scanned, %d queued, %d skipped, %d failed\n",
			h.LastScan.StartedAt.UTC().Format(time.RFC3339), h.LastScan.Scanned, h.LastScan.Queued,
			h.LastScan.Skipped, h.LastScan.Failed)
	}
	if h.LastScanError != "" {
		fmt.Fprintf(&buf, "Last scan error: %s\n", h.LastScanError)
	}

	return buf.Bytes(), nil
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write CSV records: %w", err)
	}

	return buf.Bytes(), nil
}

func joinIDs(ids []models.ItemID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

func jobDuration(j *models.SyncJob) (time.Duration, bool) {
	if j.StartedAt() == nil || j.FinishedAt() == nil {
		return 0, false
	}
	return j.FinishedAt().Sub(*j.StartedAt()).Round(time.Millisecond), true
}
