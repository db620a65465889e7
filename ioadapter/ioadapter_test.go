package ioadapter

import (
	"bytes"
	"testing"
)

func TestSliceReaderWriterRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	w := NewSliceWriter(buf)
	if err := w(8, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write error: %v", err)
	}

	r := NewSliceReader(buf)
	got := make([]byte, 4)
	if err := r(8, got); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("read back %v, want [1 2 3 4]", got)
	}
}

func TestSliceReaderOutOfBounds(t *testing.T) {
	r := NewSliceReader(make([]byte, 16))
	if err := r(10, make([]byte, 16)); err == nil {
		t.Fatalf("expected out-of-bounds error, got nil")
	}
}

func TestSliceWriterOutOfBounds(t *testing.T) {
	w := NewSliceWriter(make([]byte, 16))
	if err := w(10, make([]byte, 16)); err == nil {
		t.Fatalf("expected out-of-bounds error, got nil")
	}
}

func TestReaderAtSource(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 32)
	data[10] = 0x01
	r := NewReaderAtSource(bytes.NewReader(data))
	got := make([]byte, 4)
	if err := r(9, got); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xAB, 0x01, 0xAB, 0xAB}) {
		t.Fatalf("got %v", got)
	}
}

func TestSeekerAtReadWrite(t *testing.T) {
	backing := make([]byte, 32)
	rs := bytes.NewReader(backing)
	sa := NewSeekerAt(rs)
	got := make([]byte, 4)
	if _, err := sa.ReadAt(got, 4); err != nil {
		t.Fatalf("ReadAt error: %v", err)
	}
}
