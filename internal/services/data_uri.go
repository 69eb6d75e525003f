package services

import (
	"encoding/base64"
	"strings"
)

// parseDataURI splits a base64 data URI ("data:image/png;base64,....") into its media type
// and payload.
func parseDataURI(uri string) (mediaType string, payload string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" || mediaType == "" {
		return "", "", false
	}
	return mediaType, data, true
}

// decodeDataURI returns the raw bytes of a base64 data URI.
func decodeDataURI(uri string) (mediaType string, data []byte, ok bool) {
	mediaType, payload, ok := parseDataURI(uri)
	if !ok {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return mediaType, data, true
}
