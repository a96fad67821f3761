// Package draftstore keeps in-progress purchase orders on the client so an
// interrupted session can be restored.
package draftstore

import (
	"net/url"
	"strings"
)

const (
	keyPrefix = "po_draft"
	keySep    = ":"
	// newOrder addresses a store's unsaved document. Escaped order ids never
	// start with '_', so it cannot match a remote id.
	newOrder = "_new"

	likeEscape = "!"
)

// Key derives the storage key for a document. An empty orderID addresses
// the store's unsaved new document. Both parts are escaped so distinct
// store and order pairs never share a key.
func Key(storeID, orderID string) string {
	order := newOrder
	if id := strings.TrimSpace(orderID); id != "" {
		order = escapeSegment(id)
	}
	return storePrefix(storeID) + order
}

func storePrefix(storeID string) string {
	return keyPrefix + keySep + escapeSegment(strings.TrimSpace(storeID)) + keySep
}

// escapeSegment percent-encodes everything outside [A-Za-z0-9-_.~], which
// includes the separator and the redis glob characters, plus a leading '_'.
func escapeSegment(s string) string {
	out := url.QueryEscape(s)
	if strings.HasPrefix(out, "_") {
		out = "%5F" + out[1:]
	}
	return out
}

// likePattern matches every key with the given prefix. The pattern must be
// used with ESCAPE '!'.
func likePattern(prefix string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(prefix) + "%"
}
