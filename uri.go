package gcsio

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/javi11/gcsio/gcs"
)

// Scheme is the URI scheme the facade accepts.
const Scheme = "gs"

// ParseURI resolves scheme://bucket[/object-path] to an item identifier.
// The object path may contain slashes; query and fragment are not recognised.
func ParseURI(raw string) (gcs.ItemID, error) {
	if raw == "" {
		return gcs.ItemID{}, fmt.Errorf("%w: empty URI", ErrInvalidPath)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return gcs.ItemID{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, raw, err)
	}
	if u.Scheme != Scheme {
		return gcs.ItemID{}, fmt.Errorf("%w: %q: scheme must be %q", ErrInvalidPath, raw, Scheme)
	}
	if u.Host == "" {
		return gcs.ItemID{}, fmt.Errorf("%w: %q: missing bucket", ErrInvalidPath, raw)
	}

	return gcs.ItemID{
		Bucket: u.Host,
		Object: strings.TrimPrefix(u.Path, "/"),
	}, nil
}
