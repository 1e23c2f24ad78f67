//go:build darwin || linux

package fec

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// mmapNonce makes the scratch filename unique within this process, per
// spec.md §6 ("<dir>/fec_<object_id>_<nonce>.dat").
var mmapNonce atomic.Uint64

func nextMmapNonce() uint64 {
	return mmapNonce.Add(1)
}

// mmapStorage is the file-backed chunkStorage: a single file holding
// `capacity` chunk-byte records followed by `capacity` chunk-id records
// (u32 little-endian), memory-mapped read-write. Grounded on
// bureau-foundation-bureau/lib/artifactstore/cache_device.go's
// open-or-create-at-size / Mmap / Munmap / Unlink idiom, adapted from a
// read-only cache device to a read-write decoder scratch file that is
// normally deleted when no longer needed.
type mmapStorage struct {
	path     string
	fd       int
	data     []byte
	capacity int
	owned    bool // true until ownership is transferred or the file is deleted
}

func newMmapStorage(dir, objectID string, capacity int) (*mmapStorage, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	nonce := nextMmapNonce()
	path := filepath.Join(dir, fmt.Sprintf("fec_%s_%d.dat", objectID, nonce))

	recordSize := ChunkSize + 4
	fileSize := int64(capacity) * int64(recordSize)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("fec: create mmap storage file %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, fileSize); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("fec: truncate mmap storage file %s to %d bytes: %w", path, fileSize, err)
	}
	data, err := unix.Mmap(fd, 0, int(fileSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("fec: mmap storage file %s: %w", path, err)
	}

	log.Printf("fec: mmap storage created at %s (%d bytes)", path, fileSize)

	return &mmapStorage{
		path:     path,
		fd:       fd,
		data:     data,
		capacity: capacity,
		owned:    true,
	}, nil
}

func (s *mmapStorage) chunkOffset(slotIdx int) int {
	return slotIdx * ChunkSize
}

func (s *mmapStorage) idOffset(slotIdx int) int {
	return s.capacity*ChunkSize + slotIdx*4
}

func (s *mmapStorage) insert(chunk *Chunk, chunkID uint32, slotIdx int) error {
	if slotIdx < 0 || slotIdx >= s.capacity {
		return fmt.Errorf("fec: storage slot %d out of range [0,%d)", slotIdx, s.capacity)
	}
	copy(s.data[s.chunkOffset(slotIdx):s.chunkOffset(slotIdx)+ChunkSize], chunk[:])
	idOff := s.idOffset(slotIdx)
	s.data[idOff] = byte(chunkID)
	s.data[idOff+1] = byte(chunkID >> 8)
	s.data[idOff+2] = byte(chunkID >> 16)
	s.data[idOff+3] = byte(chunkID >> 24)
	return nil
}

func (s *mmapStorage) getChunk(slotIdx int) (*Chunk, error) {
	if slotIdx < 0 || slotIdx >= s.capacity {
		return nil, fmt.Errorf("fec: storage slot %d out of range [0,%d)", slotIdx, s.capacity)
	}
	var c Chunk
	copy(c[:], s.data[s.chunkOffset(slotIdx):s.chunkOffset(slotIdx)+ChunkSize])
	return &c, nil
}

func (s *mmapStorage) getChunkID(slotIdx int) uint32 {
	off := s.idOffset(slotIdx)
	return uint32(s.data[off]) | uint32(s.data[off+1])<<8 | uint32(s.data[off+2])<<16 | uint32(s.data[off+3])<<24
}

// size reports capacity: the mmap file is pre-sized, so "slots filled" is
// tracked by the decoder itself (chunks_recvd), not by the storage layer.
func (s *mmapStorage) size() int { return s.capacity }

// close unmaps and, if this storage still owns the file, unlinks it. It
// is infallible from the caller's point of view: errors are logged, not
// returned, matching the FIBRE original's drop behavior ("unlinks the
// owned file even on panic").
func (s *mmapStorage) close() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			log.Printf("fec: munmap %s failed: %v", s.path, err)
		}
		s.data = nil
	}
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
	if s.owned {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			log.Printf("fec: remove mmap storage file %s failed: %v", s.path, err)
		}
	}
	return nil
}

// releaseOwnership disowns the backing file so that close() will no
// longer unlink it. Decoder.IntoEncoder does not call it: it keeps the
// storage owned and hands its close to the new Encoder instead.
func (s *mmapStorage) releaseOwnership() {
	s.owned = false
}
