package fetcher

import (
	"fmt"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/goccy/go-json"
)

// playlistDocument is the subset of yt-dlp's --dump-single-json output we rely on.
type playlistDocument struct {
	Type          string           `json:"_type"`
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Availability  string           `json:"availability"`
	PlaylistCount *int             `json:"playlist_count"`
	Entries       []*playlistEntry `json:"entries"`
}

type playlistEntry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Uploader string   `json:"uploader"`
	Channel  string   `json:"channel"`
	Duration *float64 `json:"duration"`
}

// ParseListing decodes a flat playlist document.
//
// Entries that are null or carry no ID are skipped. A private playlist or a document that
// does not describe a playlist is reported as [shared.ErrRemoteUnavailable].
func ParseListing(data []byte) (*models.RemoteListing, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: empty listing", shared.ErrRemoteUnavailable)
	}

	var doc playlistDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode listing: %v", shared.ErrRemoteUnavailable, err)
	}

	if doc.Type != "" && doc.Type != "playlist" {
		return nil, fmt.Errorf("%w: %s is a %s, not a playlist", shared.ErrRemoteUnavailable, doc.ID, doc.Type)
	}
	if doc.Availability == "private" {
		return nil, fmt.Errorf("%w: playlist %s is private", shared.ErrRemoteUnavailable, doc.ID)
	}

	listing := &models.RemoteListing{
		PlaylistID: doc.ID,
		Title:      doc.Title,
		Items:      make([]models.RemoteItem, 0, len(doc.Entries)),
	}
	for _, entry := range doc.Entries {
		if entry == nil || strings.TrimSpace(entry.ID) == "" {
			continue
		}
		item := models.RemoteItem{
			ID:       models.ItemID(entry.ID),
			Title:    entry.Title,
			Uploader: entry.Uploader,
		}
		if item.Uploader == "" {
			item.Uploader = entry.Channel
		}
		if entry.Duration != nil {
			item.Duration = int(*entry.Duration)
		}
		listing.Items = append(listing.Items, item)
	}
	if doc.PlaylistCount != nil {
		listing.Count = *doc.PlaylistCount
	} else {
		listing.Count = len(listing.Items)
	}
	return listing, nil
}
