package acquire

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of acquisition strategies
type Kind string

// Specifier kinds
const (
	KindDefaultRemote Kind = "default-remote"
	KindForcedUpdate  Kind = "forced-update"
	KindCacheOnly     Kind = "cache-only"
	KindLocalPath     Kind = "local-path"
	KindRemoteURL     Kind = "remote-url"
	KindSample        Kind = "sample"
)

// Shortcuts accepted on the command line and the API
const (
	ShortcutNYC       = "nyc"
	ShortcutNYCLatest = "nyc:latest"
	ShortcutNYCCached = "nyc:cached"
	ShortcutNYCUpdate = "nyc:update"
	ShortcutSample    = "sample"
)

// ErrUnknownShortcut is returned for an nyc: shortcut with an unknown suffix
var ErrUnknownShortcut = errors.New("unknown source shortcut")

// Specifier names the source of one acquisition. Location is set for local paths and URLs.
type Specifier struct {
	Kind     Kind   `json:"kind"`
	Location string `json:"location,omitempty"`
}

// ParseSpecifier resolves a caller-supplied source string
func ParseSpecifier(raw string) (Specifier, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "", ShortcutNYC, ShortcutNYCLatest:
		return Specifier{Kind: KindDefaultRemote}, nil
	case ShortcutNYCCached:
		return Specifier{Kind: KindCacheOnly}, nil
	case ShortcutNYCUpdate:
		return Specifier{Kind: KindForcedUpdate}, nil
	case ShortcutSample:
		return Specifier{Kind: KindSample}, nil
	}

	if strings.HasPrefix(lower, ShortcutNYC+":") {
		return Specifier{}, fmt.Errorf("%w: %q", ErrUnknownShortcut, trimmed)
	}

	for _, scheme := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(lower, scheme) {
			return Specifier{Kind: KindRemoteURL, Location: trimmed}, nil
		}
	}

	return Specifier{Kind: KindLocalPath, Location: trimmed}, nil
}

// String renders the specifier in its shortcut form
func (s Specifier) String() string {
	switch s.Kind {
	case KindDefaultRemote:
		return ShortcutNYC
	case KindCacheOnly:
		return ShortcutNYCCached
	case KindForcedUpdate:
		return ShortcutNYCUpdate
	case KindSample:
		return ShortcutSample
	default:
		return s.Location
	}
}
