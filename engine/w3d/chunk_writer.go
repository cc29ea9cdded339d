package w3d

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// pendingChunk buffers the payload of a chunk until its size is known.
type pendingChunk struct {
	id       uint32
	buf      bytes.Buffer
	children bool
}

// chunkWriterImpl is the implementation of the ChunkWriter interface.
type chunkWriterImpl struct {
	w     io.Writer
	stack []*pendingChunk
}

// ChunkWriter produces a W3D chunk stream. Chunks nest in stack order; a chunk's header is
// written when EndChunk is called and its payload size is known.
type ChunkWriter interface {
	// BeginChunk starts a new chunk inside the current one (or at top level).
	//
	// Parameters:
	//   - id: the chunk identifier
	BeginChunk(id uint32)

	// EndChunk finishes the innermost open chunk and appends it to its parent or the stream.
	//
	// Returns:
	//   - error: error if no chunk is open or the stream write fails
	EndChunk() error

	// Write appends raw payload bytes to the innermost open chunk.
	Write(p []byte) (int, error)

	// WriteStruct appends a fixed-size little-endian record to the innermost open chunk.
	//
	// Parameters:
	//   - v: a fixed-size value, pointer to one, or slice of them
	//
	// Returns:
	//   - error: error if v is not fixed-size or no chunk is open
	WriteStruct(v any) error
}

var _ ChunkWriter = &chunkWriterImpl{}

// NewChunkWriter creates a ChunkWriter that emits finished top-level chunks to w.
//
// Parameters:
//   - w: the destination stream
//
// Returns:
//   - ChunkWriter: the chunk writer
func NewChunkWriter(w io.Writer) ChunkWriter {
	return &chunkWriterImpl{w: w}
}

func (c *chunkWriterImpl) BeginChunk(id uint32) {
	if len(c.stack) > 0 {
		c.stack[len(c.stack)-1].children = true
	}
	c.stack = append(c.stack, &pendingChunk{id: id})
}

func (c *chunkWriterImpl) EndChunk() error {
	if len(c.stack) == 0 {
		return ErrNoOpenChunk
	}
	cur := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	size := uint32(cur.buf.Len())
	if cur.children {
		size |= subChunkFlag
	}
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], cur.id)
	binary.LittleEndian.PutUint32(header[4:8], size)

	var dst io.Writer = c.w
	if len(c.stack) > 0 {
		dst = &c.stack[len(c.stack)-1].buf
	}
	if _, err := dst.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write chunk 0x%x header: %w", cur.id, err)
	}
	if _, err := dst.Write(cur.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write chunk 0x%x payload: %w", cur.id, err)
	}
	return nil
}

func (c *chunkWriterImpl) Write(p []byte) (int, error) {
	if len(c.stack) == 0 {
		return 0, ErrNoOpenChunk
	}
	return c.stack[len(c.stack)-1].buf.Write(p)
}

func (c *chunkWriterImpl) WriteStruct(v any) error {
	if len(c.stack) == 0 {
		return ErrNoOpenChunk
	}
	return binary.Write(&c.stack[len(c.stack)-1].buf, binary.LittleEndian, v)
}

// WriteChunk writes a complete leaf chunk holding the given records.
//
// Parameters:
//   - w: the chunk writer
//   - id: the chunk identifier
//   - records: fixed-size values written in order
//
// Returns:
//   - error: error if any record cannot be encoded
func WriteChunk(w ChunkWriter, id uint32, records ...any) error {
	w.BeginChunk(id)
	for _, rec := range records {
		if err := w.WriteStruct(rec); err != nil {
			return fmt.Errorf("failed to encode chunk 0x%x: %w", id, err)
		}
	}
	return w.EndChunk()
}
