package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// patchAt overwrites len(data) bytes of the file at path starting at
// offset.
func patchAt(path string, offset int64, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("ttt: opening %s for patching: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("ttt: patching %s at offset %#x: %w", path, offset, err)
	}
	return nil
}

// readAt reads len(buf) bytes at offset, for comparing against a
// candidate patch before writing it.
func readAt(path string, offset int64, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ttt: opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("ttt: reading %s at offset %#x: %w", path, offset, err)
	}
	return buf, nil
}

// tableImageTag fingerprints a table image with blake2b-256. It is not a
// security boundary: it lets a re-run of ttt recognise that the ELF
// already carries the table image it was about to write, so a repeated
// invocation against an unchanged kernel is a no-op rather than a
// redundant rewrite of an identical region.
func tableImageTag(image []byte) [32]byte {
	return blake2b.Sum256(image)
}

// u64ToLEBytes encodes v for a PHYS_KERNEL_TABLES_BASE_ADDR patch.
func u64ToLEBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
