package fetcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Requirement defines an external binary the fetcher relies on.
type Requirement struct {
	Name        string
	Command     string
	VersionArgs []string
	Description string
	Optional    bool
}

// Status reports the availability of a binary.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func defaultLookPath(name string) (string, error) { return exec.LookPath(name) }

// Requirements lists the binaries a full fetch needs.
func (c *Client) Requirements() []Requirement {
	ffmpeg := c.cfg.FFmpegBinary
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return []Requirement{
		{Name: "yt-dlp", Command: c.cfg.Binary, VersionArgs: []string{"--version"}, Description: "Playlist listing and media download"},
		{Name: "FFmpeg", Command: ffmpeg, VersionArgs: []string{"-version"}, Description: "Audio extraction and metadata embedding"},
	}
}

// Health resolves every requirement and, when found, records the first line of its version output.
func (c *Client) Health(ctx context.Context) []Status {
	requirements := c.Requirements()
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: req.Description,
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := c.lookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}

		status.Available = true
		version, err := c.version(ctx, cmd, req.VersionArgs)
		if err != nil {
			status.Detail = fmt.Sprintf("version check failed: %v", err)
		}
		status.Version = version
		results = append(results, status)
	}
	return results
}

func (c *Client) version(ctx context.Context, cmd string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var first string
	err := c.exec.Run(ctx, cmd, args, func(line string) {
		if first == "" {
			first = strings.TrimSpace(line)
		}
	}, nil)
	return first, err
}

// Ready reports whether every non-optional requirement is available.
func Ready(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			return false
		}
	}
	return true
}
