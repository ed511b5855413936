package wire

import (
	"bytes"
	"testing"
)

func TestVarBytesRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0x7f}, MaxChunk),
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := WriteVarBytes(&buf, c); err != nil {
			t.Fatalf("WriteVarBytes: %v", err)
		}
		got, err := ReadVarBytes(&buf)
		if err != nil {
			t.Fatalf("ReadVarBytes: %v", err)
		}
		if !bytes.Equal(got, c) {
			t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(c))
		}
	}
}

func TestWriteVarBytesRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteVarBytes(&buf, make([]byte, MaxChunk+1))
	if err == nil {
		t.Fatal("expected error for oversize payload")
	}
}

func TestReadVarBytesRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt64(&buf, MaxChunk+1); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVarBytes(&buf); err == nil {
		t.Fatal("expected error for oversize length prefix")
	}
}

func TestReadVarBytesRejectsNegativeLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt64(&buf, -1); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVarBytes(&buf); err == nil {
		t.Fatal("expected error for negative length prefix")
	}
}

func TestWriteInt64BigEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt64(&buf, 1); err != nil {
		t.Fatal(err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0, 0, 0, 0, 0, 0, 0, 1}) {
		t.Errorf("WriteInt64(1) = %v, want big-endian 1", got)
	}
}

func TestReadBytesShortReadIsEndOfStream(t *testing.T) {
	buf := bytes.NewReader([]byte{1, 2})
	if _, err := ReadBytes(buf, 3); err != ErrEndOfStream {
		t.Errorf("got %v, want ErrEndOfStream", err)
	}
}
