package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestPatchAtOverwritesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.elf")
	original := bytes.Repeat([]byte{0xAA}, 64)
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	patch := []byte{1, 2, 3, 4}
	if err := patchAt(path, 16, patch); err != nil {
		t.Fatalf("patchAt: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(original) {
		t.Fatalf("file length changed: got %d, want %d", len(got), len(original))
	}
	if !bytes.Equal(got[16:20], patch) {
		t.Fatalf("patched region = %v, want %v", got[16:20], patch)
	}
	if !bytes.Equal(got[:16], original[:16]) || !bytes.Equal(got[20:], original[20:]) {
		t.Fatal("bytes outside the patch window were modified")
	}
}

func TestReadAtMatchesWrittenBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.elf")
	data := []byte("some file contents here")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := readAt(path, 5, 4)
	if err != nil {
		t.Fatalf("readAt: %v", err)
	}
	if !bytes.Equal(got, data[5:9]) {
		t.Fatalf("readAt = %q, want %q", got, data[5:9])
	}
}

func TestTableImageTagStableAndSensitive(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	if tableImageTag(a) != tableImageTag(b) {
		t.Fatal("identical images produced different tags")
	}
	if tableImageTag(a) == tableImageTag(c) {
		t.Fatal("differing images produced the same tag")
	}
}

func TestU64ToLEBytes(t *testing.T) {
	got := u64ToLEBytes(0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("u64ToLEBytes = %v, want %v", got, want)
	}
}
