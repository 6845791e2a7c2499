package bookmarks

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fixed node ids for the well-known roots. Stable across installs so the
// sync engine can bind server root folders deterministically.
const (
	rootMenuID    = "root-menu"
	rootToolbarID = "root-toolbar"
	rootMobileID  = "root-mobile"
	rootDefaultID = "root-default"
)

// rootTitles are the display titles the roots are created with.
var rootTitles = map[WellKnownRootID]string{
	RootMenu:    "Bookmarks Menu",
	RootToolbar: "Bookmarks Toolbar",
	RootMobile:  "Mobile Bookmarks",
	RootDefault: "Other Bookmarks",
}

// rootIDs maps well-known root identifiers to their node ids.
var rootIDs = map[WellKnownRootID]string{
	RootMenu:    rootMenuID,
	RootToolbar: rootToolbarID,
	RootMobile:  rootMobileID,
	RootDefault: rootDefaultID,
}

// rootNames maps folded folder titles to the root they represent. Covers the
// names browsers and the server use for these folders.
var rootNames = map[string]WellKnownRootID{
	"menu":               RootMenu,
	"bookmarks menu":     RootMenu,
	"toolbar":            RootToolbar,
	"bookmarks toolbar":  RootToolbar,
	"bookmarks bar":      RootToolbar,
	"mobile":             RootMobile,
	"mobile bookmarks":   RootMobile,
	"other":              RootDefault,
	"other bookmarks":    RootDefault,
	"unfiled":            RootDefault,
	"unsorted bookmarks": RootDefault,
}

// foldTitle normalizes a folder title for comparison: NFC, lowercased,
// surrounding whitespace trimmed.
func foldTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// MatchWellKnownRoot reports whether title names one of the well-known roots.
// Matching is case-insensitive and Unicode-normalized.
func MatchWellKnownRoot(title string) (WellKnownRootID, bool) {
	id, ok := rootNames[foldTitle(title)]
	return id, ok
}

// IsRootID reports whether id is one of the fixed root node ids.
func IsRootID(id string) bool {
	switch id {
	case rootMenuID, rootToolbarID, rootMobileID, rootDefaultID:
		return true
	default:
		return false
	}
}

// wellKnownRoots returns a fresh copy of the root id map.
func wellKnownRoots() map[WellKnownRootID]string {
	out := make(map[WellKnownRootID]string, len(rootIDs))
	for k, v := range rootIDs {
		out[k] = v
	}

	return out
}
