package w3d

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RawChunk is a complete chunk held in memory so it can be decoded later, possibly on another goroutine.
type RawChunk struct {
	ID        uint32
	Container bool
	Payload   []byte
}

// ReadRawChunk captures the unread payload of the open chunk. The chunk stays open.
//
// Parameters:
//   - r: the chunk reader with the chunk open and nothing read from it
//
// Returns:
//   - RawChunk: the captured chunk
//   - error: error if the payload is truncated
func ReadRawChunk(r ChunkReader) (RawChunk, error) {
	payload, err := ReadRest(r)
	if err != nil {
		return RawChunk{}, fmt.Errorf("failed to capture chunk 0x%x: %w", r.ID(), err)
	}
	return RawChunk{ID: r.ID(), Container: r.ContainsChunks(), Payload: payload}, nil
}

// Open returns a reader with the chunk already open, as if it had been read from a stream.
//
// Returns:
//   - ChunkReader: the reader positioned at the start of the payload
//   - error: error if the chunk header cannot be decoded
func (c RawChunk) Open() (ChunkReader, error) {
	size := uint32(len(c.Payload))
	if c.Container {
		size |= subChunkFlag
	}
	buf := make([]byte, 8, 8+len(c.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], c.ID)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	buf = append(buf, c.Payload...)

	r := NewChunkReader(bytes.NewReader(buf))
	if _, err := r.OpenChunk(); err != nil {
		return nil, err
	}
	return r, nil
}
