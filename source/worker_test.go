package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rhttp/rhttp/pipe"
	"github.com/rhttp/rhttp/wire"
)

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.bin"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	return root + "/"
}

func startWorker(t *testing.T, root string) *pipe.Pipe {
	t.Helper()
	server, src := pipe.NewLocalPair()
	w := NewWorker(src, root, false)
	go w.Run()
	t.Cleanup(func() { server.Close() })
	return server
}

func getFileSize(t *testing.T, p *pipe.Pipe, rel string) int64 {
	t.Helper()
	p.Lock()
	defer p.Unlock()
	if err := p.WriteBytes([]byte{wire.TagGetFileSize}); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteVarBytes([]byte(rel)); err != nil {
		t.Fatal(err)
	}
	n, err := p.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestGetFileSize(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	if got := getFileSize(t, p, "a.txt"); got != 6 {
		t.Errorf("size = %d, want 6", got)
	}
	if got := getFileSize(t, p, "sub"); got != -2 {
		t.Errorf("directory size = %d, want -2", got)
	}
	if got := getFileSize(t, p, "nope.txt"); got != -1 {
		t.Errorf("missing file size = %d, want -1", got)
	}
}

func TestGetFileSizeRejectsEscape(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	for _, rel := range []string{"../etc/passwd", "%2e%2e/%2e%2e/etc/passwd", "sub/../../etc/passwd"} {
		if got := getFileSize(t, p, rel); got != -1 {
			t.Errorf("escape via %q: size = %d, want -1", rel, got)
		}
	}
}

func TestGetChunk(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	p.Lock()
	if err := p.WriteBytes([]byte{wire.TagGetChunk}); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteVarBytes([]byte("sub/b.bin")); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteInt64(10); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteInt64(10); err != nil {
		t.Fatal(err)
	}
	n, err := p.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	data, err := p.ReadBytes(n)
	p.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("chunk mismatch at %d: got %d want %d", i, data[i], want[i])
		}
	}
}

func TestGetChunkOversizeIsProtocolViolation(t *testing.T) {
	root := newTestRoot(t)
	server, src := pipe.NewLocalPair()
	w := NewWorker(src, root, false)
	errc := make(chan error, 1)
	go func() { errc <- w.Run() }()

	server.Lock()
	server.WriteBytes([]byte{wire.TagGetChunk})
	server.WriteVarBytes([]byte("a.txt"))
	server.WriteInt64(0)
	server.WriteInt64(wire.MaxChunk + 1)
	server.Unlock()

	if err := <-errc; err != wire.ErrProtocolViolation {
		t.Errorf("Run() = %v, want ErrProtocolViolation", err)
	}
}

func TestListDir(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	p.Lock()
	p.WriteBytes([]byte{wire.TagListDir})
	p.WriteVarBytes([]byte("sub"))
	n, err := p.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	if n < 0 {
		t.Fatalf("list dir failed: %d", n)
	}
	page, err := p.ReadBytes(n)
	p.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(page); !contains(got, `<a href="b.bin">b.bin</a>`) {
		t.Errorf("index missing entry link: %s", got)
	}
}

func TestListDirHeadingPreservesSlashes(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	p.Lock()
	p.WriteBytes([]byte{wire.TagListDir})
	p.WriteVarBytes([]byte("sub"))
	n, err := p.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	if n < 0 {
		t.Fatalf("list dir failed: %d", n)
	}
	page, err := p.ReadBytes(n)
	p.Unlock()
	if err != nil {
		t.Fatal(err)
	}

	got := string(page)
	if contains(got, "%2F") || contains(got, "%2f") {
		t.Errorf("heading should keep path separators readable, got: %s", got)
	}
	if !contains(got, "<h1>") || !contains(got, "/sub</h1>") {
		t.Errorf("heading missing readable canonical path: %s", got)
	}
}

func TestListEmptyDir(t *testing.T) {
	root := newTestRoot(t)
	p := startWorker(t, root)

	p.Lock()
	p.WriteBytes([]byte{wire.TagListDir})
	p.WriteVarBytes([]byte("empty"))
	n, err := p.ReadInt64()
	if err != nil {
		t.Fatal(err)
	}
	page, err := p.ReadBytes(n)
	p.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if contains(string(page), "<p>") {
		t.Errorf("expected no entries in empty directory index, got %s", page)
	}
}

func TestUnknownTagEndsLoopCleanly(t *testing.T) {
	root := newTestRoot(t)
	server, src := pipe.NewLocalPair()
	w := NewWorker(src, root, false)
	errc := make(chan error, 1)
	go func() { errc <- w.Run() }()

	server.Lock()
	server.WriteBytes([]byte{'z'})
	server.Unlock()

	if err := <-errc; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
