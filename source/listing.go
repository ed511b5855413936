package source

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"sort"
	"strings"
)

// renderIndex builds the minimal HTML directory index: a boilerplate
// head whose title and heading are the URL-encoded canonical path, one
// <p><a> per entry sorted by raw byte value, and a boilerplate tail.
// Subdirectories get a trailing "/" before encoding.
func renderIndex(canonicalPath string, entries []os.DirEntry) ([]byte, error) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	// url.PathEscape alone would also escape the "/" separators (it
	// follows the path-segment escaping rules), turning the heading into
	// one unbroken %2F-joined blob. Routing canonicalPath through a URL's
	// EscapedPath keeps each segment escaped but leaves the separators
	// readable.
	encodedPath := (&url.URL{Path: canonicalPath}).EscapedPath()

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<title>")
	b.WriteString(encodedPath)
	b.WriteString("</title>\n</head>\n<body>\n<h1>")
	b.WriteString(encodedPath)
	b.WriteString("</h1>\n")

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		href := url.PathEscape(name)
		text := html.EscapeString(name)
		fmt.Fprintf(&b, "<p><a href=\"%s\">%s</a></p>\n", href, text)
	}

	b.WriteString("</body>\n</html>\n")
	return []byte(b.String()), nil
}
