package source

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// errEscape is returned by resolve when the requested path, once
// percent-decoded, joined to root, and canonicalised, is not root itself
// or a strict descendant of it. Confinement is done purely on the
// resolved path, never by string-filtering the request.
var errEscape = errors.New("source: path escapes root")

// resolve percent-decodes rel, joins it to root, and canonicalises the
// result (resolving ".." and symlinks via filepath.EvalSymlinks). root
// must already be an absolute, canonical, trailing-slash path.
func resolve(root, rel string) (string, error) {
	decoded, err := url.PathUnescape(rel)
	if err != nil {
		return "", errEscape
	}
	joined := filepath.Join(root, decoded)

	rootClean := strings.TrimSuffix(root, "/")

	// filepath.Join already collapses ".." lexically, but a symlink
	// inside the tree can still point outside it, so resolve the real
	// path before testing the prefix.
	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The target may not exist yet (e.g. a stat on a missing file);
		// fall back to the lexical join so callers can still surface
		// a not-found error instead of a spurious escape.
		real = joined
	}

	if real == rootClean {
		return real, nil
	}
	if strings.HasPrefix(real, rootClean+string(filepath.Separator)) {
		return real, nil
	}
	return "", errEscape
}
