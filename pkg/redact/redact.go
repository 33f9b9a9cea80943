package redact

import (
	"fmt"
	"net/url"
)

// URL reduces a location or MMSC URL to its host plus total length so that
// message identifiers embedded in the path never reach non-verbose logs.
func URL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("<unparsable len=%d>", len(raw))
	}
	return fmt.Sprintf("%s...(len=%d)", u.Host, len(raw))
}
