// Package mimeguess implements the MimeGuess(path) -> string collaborator
// used to label response bodies. It defaults to application/octet-stream
// and otherwise defers to the file extension, the same heuristic gorox's
// staticHandlet uses, minus its hand-rolled extension table: the standard
// library's mime package already maintains one, so no third-party MIME
// database is worth pulling in.
package mimeguess

import (
	"mime"
	"path/filepath"
)

// DefaultType is returned whenever the extension is unknown or missing.
const DefaultType = "application/octet-stream"

// Guess returns the MIME type for path based on its extension, falling
// back to DefaultType.
func Guess(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return DefaultType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultType
}
