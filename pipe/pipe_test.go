package pipe

import (
	"sync"
	"testing"
)

func TestLocalPairExchange(t *testing.T) {
	server, source := NewLocalPair()

	done := make(chan struct{})
	go func() {
		defer close(done)
		tag, err := source.ReadBytes(1)
		if err != nil || tag[0] != 'b' {
			t.Errorf("source read tag: %v %v", tag, err)
			return
		}
		path, err := source.ReadVarBytes()
		if err != nil || string(path) != "a.txt" {
			t.Errorf("source read path: %q %v", path, err)
			return
		}
		if err := source.WriteInt64(6); err != nil {
			t.Errorf("source write reply: %v", err)
		}
	}()

	server.Lock()
	if err := server.WriteBytes([]byte{'b'}); err != nil {
		t.Fatal(err)
	}
	if err := server.WriteVarBytes([]byte("a.txt")); err != nil {
		t.Fatal(err)
	}
	size, err := server.ReadInt64()
	server.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if size != 6 {
		t.Errorf("size = %d, want 6", size)
	}
	<-done
}

func TestLockSerializesExchanges(t *testing.T) {
	server, source := NewLocalPair()

	go func() {
		for i := 0; i < 4; i++ {
			tag, err := source.ReadBytes(1)
			if err != nil || tag[0] != 'b' {
				return
			}
			if _, err := source.ReadVarBytes(); err != nil {
				return
			}
			source.WriteInt64(int64(i))
		}
	}()

	var wg sync.WaitGroup
	results := make([]int64, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			server.Lock()
			defer server.Unlock()
			server.WriteBytes([]byte{'b'})
			server.WriteVarBytes([]byte("x"))
			n, _ := server.ReadInt64()
			results[i] = n
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range results {
		seen[r] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct serialized replies, got %v", results)
	}
}
