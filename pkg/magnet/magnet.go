// Package magnet builds magnet URIs from torrent info hashes.
package magnet

import (
	"fmt"
	"net/url"
	"strings"
)

// Build returns a magnet URI for the given info hash. The display name is
// optional and URL-escaped when present.
func Build(infoHash, displayName string) string {
	uri := fmt.Sprintf("magnet:?xt=urn:btih:%s", strings.ToLower(infoHash))
	if displayName != "" {
		uri += "&dn=" + url.QueryEscape(displayName)
	}
	return uri
}
