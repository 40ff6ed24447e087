package models

import (
	"fmt"
	"sort"
)

// ItemID is the stable identifier of one playable item (e.g. a video ID).
type ItemID string

// ItemSet is an unordered set of item IDs.
type ItemSet map[ItemID]struct{}

// NewItemSet builds a set from the given IDs, collapsing duplicates.
func NewItemSet(ids ...ItemID) ItemSet {
	s := make(ItemSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s ItemSet) Add(id ItemID) {
	s[id] = struct{}{}
}

// Has reports membership. A nil set contains nothing.
func (s ItemSet) Has(id ItemID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of distinct IDs.
func (s ItemSet) Len() int {
	return len(s)
}

// Minus returns the IDs in s that are not in other.
func (s ItemSet) Minus(other ItemSet) ItemSet {
	out := make(ItemSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns a new set holding every ID of s and other.
func (s ItemSet) Union(other ItemSet) ItemSet {
	out := make(ItemSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same IDs.
func (s ItemSet) Equal(other ItemSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the IDs in lexical order, for stable output.
func (s ItemSet) Sorted() []ItemID {
	ids := make([]ItemID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RemoteItem is one entry of a flat remote listing.
type RemoteItem struct {
	ID       ItemID
	Title    string
	Uploader string
	Duration int // seconds, zero when unknown
}

// RemoteListing is the ordered membership of a remote playlist.
type RemoteListing struct {
	PlaylistID string
	Title      string
	Count      int // remote-reported size, which may exceed len(Items) for truncated listings
	Items      []RemoteItem
}

// IDs returns the listing's item IDs as a set.
func (l *RemoteListing) IDs() ItemSet {
	s := make(ItemSet, len(l.Items))
	for _, item := range l.Items {
		s.Add(item.ID)
	}
	return s
}

// DiffResult holds the item IDs to fetch and to remove for one playlist in one cycle.
//
// Both sets derive from the same two snapshots, so they never intersect.
type DiffResult struct {
	Added   ItemSet
	Removed ItemSet
}

// Empty reports whether the playlist is already in sync.
func (d DiffResult) Empty() bool {
	return d.Added.Len() == 0 && d.Removed.Len() == 0
}

// IssueKind classifies a local integrity problem.
type IssueKind string

const (
	IssueMissingDirectory IssueKind = "missing_directory"
	IssueZeroByteFiles    IssueKind = "zero_byte_files"
)

// ValidationIssue is one advisory finding of the validator.
type ValidationIssue struct {
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
	Count  int       `json:"count"`
	Files  []string  `json:"files,omitempty"` // relative file names involved, when applicable
	Items  []ItemID  `json:"items,omitempty"` // item IDs resolved through sidecar metadata, when available
}

// ValidationReport lists integrity issues for one playlist. It is advisory only.
type ValidationReport struct {
	Key    PlaylistKey       `json:"key"`
	Issues []ValidationIssue `json:"issues"`
}

// Empty reports whether no issues were found.
func (r *ValidationReport) Empty() bool {
	return len(r.Issues) == 0
}

// Add appends an issue to the report.
func (r *ValidationReport) Add(kind IssueKind, count int, format string, args ...any) *ValidationIssue {
	r.Issues = append(r.Issues, ValidationIssue{Kind: kind, Count: count, Detail: fmt.Sprintf(format, args...)})
	return &r.Issues[len(r.Issues)-1]
}

// RepairIDs returns the item IDs whose local media must be re-fetched.
func (r *ValidationReport) RepairIDs() ItemSet {
	out := make(ItemSet)
	for _, issue := range r.Issues {
		for _, id := range issue.Items {
			out.Add(id)
		}
	}
	return out
}
