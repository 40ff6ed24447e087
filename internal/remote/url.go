package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/plsync/internal/shared"
)

// PlaylistIDLength is the length of a user playlist ID ("PL" plus 32 characters).
const PlaylistIDLength = 34

var playlistURLPattern = regexp.MustCompile(
	`(?i)^(?:https?://)?(?:www\.)?youtube\.com/playlist\?(?:.*&)?list=([A-Za-z0-9_-]+)(?:&.*)?$`,
)

// NormalizePlaylistURL validates a playlist URL and returns its canonical form and ID.
//
// The scheme and www prefix are optional, but the path must be /playlist with a list
// parameter; other query parameters are discarded.
func NormalizePlaylistURL(raw string) (string, string, error) {
	match := playlistURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return "", "", fmt.Errorf("%w: %q", shared.ErrInvalidPlaylistURL, raw)
	}

	id := match[1]
	if len(id) != PlaylistIDLength {
		return "", "", fmt.Errorf("%w: playlist id %q must be %d characters", shared.ErrInvalidPlaylistURL, id, PlaylistIDLength)
	}
	return PlaylistURL(id), id, nil
}

// PlaylistURL returns the canonical URL for a playlist ID.
func PlaylistURL(id string) string {
	return "https://www.youtube.com/playlist?list=" + id
}
