package w3d

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// openChunk tracks one level of the chunk stack.
type openChunk struct {
	id       uint32
	length   uint32
	pos      uint32
	children bool
}

// chunkReaderImpl is the implementation of the ChunkReader interface.
type chunkReaderImpl struct {
	r     io.Reader
	stack []openChunk
}

// ChunkReader walks a W3D chunk stream. Chunks are opened and closed in a strict stack order:
// OpenChunk descends into the next chunk of the current container, reads are bounded by the
// open chunk, and CloseChunk skips whatever payload was not consumed.
type ChunkReader interface {
	// OpenChunk reads the header of the next chunk in the current container and makes it the
	// open chunk.
	//
	// Returns:
	//   - bool: false when the current container (or the stream at top level) has no more chunks
	//   - error: error if a chunk header is truncated
	OpenChunk() (bool, error)

	// CloseChunk skips the unread remainder of the open chunk and pops it off the stack.
	//
	// Returns:
	//   - error: error if there is no open chunk or the remainder cannot be skipped
	CloseChunk() error

	// ID returns the identifier of the open chunk, or 0 if none is open.
	ID() uint32

	// Length returns the payload length of the open chunk, or 0 if none is open.
	Length() uint32

	// Remaining returns the number of unread payload bytes of the open chunk.
	Remaining() uint32

	// ContainsChunks reports whether the open chunk's header marks its payload as sub-chunks.
	ContainsChunks() bool

	// Read reads up to len(p) bytes of the open chunk's payload.
	//
	// Parameters:
	//   - p: destination buffer
	//
	// Returns:
	//   - int: number of bytes read
	//   - error: io.EOF when the chunk is exhausted, or the underlying read error
	Read(p []byte) (int, error)

	// ReadFull reads exactly len(p) payload bytes.
	//
	// Parameters:
	//   - p: destination buffer
	//
	// Returns:
	//   - error: ErrChunkOverrun if the chunk holds fewer than len(p) bytes
	ReadFull(p []byte) error

	// ReadStruct decodes a fixed-size little-endian record from the open chunk.
	//
	// Parameters:
	//   - v: pointer to a fixed-size value (see encoding/binary)
	//
	// Returns:
	//   - error: ErrChunkOverrun if the chunk is too short for the record
	ReadStruct(v any) error
}

var _ ChunkReader = &chunkReaderImpl{}

// NewChunkReader creates a ChunkReader over r.
//
// Parameters:
//   - r: the stream positioned at the first chunk header
//
// Returns:
//   - ChunkReader: the chunk reader
func NewChunkReader(r io.Reader) ChunkReader {
	return &chunkReaderImpl{r: r}
}

func (c *chunkReaderImpl) top() *openChunk {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

func (c *chunkReaderImpl) OpenChunk() (bool, error) {
	parent := c.top()
	if parent != nil && parent.length-parent.pos < 8 {
		return false, nil
	}

	var header [8]byte
	n, err := io.ReadFull(c.r, header[:])
	if err != nil {
		if parent == nil && n == 0 && errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read chunk header: %w", ErrTruncatedChunk)
	}

	id := binary.LittleEndian.Uint32(header[0:4])
	size := binary.LittleEndian.Uint32(header[4:8])
	length := size &^ subChunkFlag

	if parent != nil {
		parent.pos += 8
		if length > parent.length-parent.pos {
			return false, fmt.Errorf("chunk 0x%x overruns its container: %w", id, ErrTruncatedChunk)
		}
	}

	c.stack = append(c.stack, openChunk{
		id:       id,
		length:   length,
		children: size&subChunkFlag != 0,
	})
	return true, nil
}

func (c *chunkReaderImpl) CloseChunk() error {
	cur := c.top()
	if cur == nil {
		return ErrNoOpenChunk
	}

	if rest := int64(cur.length - cur.pos); rest > 0 {
		if _, err := io.CopyN(io.Discard, c.r, rest); err != nil {
			return fmt.Errorf("failed to skip chunk 0x%x: %w", cur.id, ErrTruncatedChunk)
		}
	}

	length := cur.length
	c.stack = c.stack[:len(c.stack)-1]
	if parent := c.top(); parent != nil {
		parent.pos += length
	}
	return nil
}

func (c *chunkReaderImpl) ID() uint32 {
	if cur := c.top(); cur != nil {
		return cur.id
	}
	return 0
}

func (c *chunkReaderImpl) Length() uint32 {
	if cur := c.top(); cur != nil {
		return cur.length
	}
	return 0
}

func (c *chunkReaderImpl) Remaining() uint32 {
	if cur := c.top(); cur != nil {
		return cur.length - cur.pos
	}
	return 0
}

func (c *chunkReaderImpl) ContainsChunks() bool {
	if cur := c.top(); cur != nil {
		return cur.children
	}
	return false
}

func (c *chunkReaderImpl) Read(p []byte) (int, error) {
	cur := c.top()
	if cur == nil {
		return 0, ErrNoOpenChunk
	}
	rest := cur.length - cur.pos
	if rest == 0 {
		return 0, io.EOF
	}
	if uint32(len(p)) > rest {
		p = p[:rest]
	}
	n, err := c.r.Read(p)
	cur.pos += uint32(n)
	if err == io.EOF && cur.pos < cur.length {
		err = ErrTruncatedChunk
	}
	return n, err
}

func (c *chunkReaderImpl) ReadFull(p []byte) error {
	if c.top() == nil {
		return ErrNoOpenChunk
	}
	if uint32(len(p)) > c.Remaining() {
		return ErrChunkOverrun
	}
	if _, err := io.ReadFull(c, p); err != nil {
		return fmt.Errorf("failed to read chunk 0x%x: %w", c.ID(), ErrTruncatedChunk)
	}
	return nil
}

func (c *chunkReaderImpl) ReadStruct(v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("w3d: %T is not a fixed-size record", v)
	}
	buf := make([]byte, size)
	if err := c.ReadFull(buf); err != nil {
		return err
	}
	_, err := binary.Decode(buf, binary.LittleEndian, v)
	return err
}

// ReadFloat32s reads n little-endian float32 values from the open chunk.
//
// Parameters:
//   - r: the chunk reader
//   - n: number of values to read
//
// Returns:
//   - []float32: the decoded values
//   - error: ErrChunkOverrun if the chunk is too short
func ReadFloat32s(r ChunkReader, n int) ([]float32, error) {
	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}
	if err := r.ReadStruct(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadUint32s reads n little-endian uint32 values from the open chunk.
//
// Parameters:
//   - r: the chunk reader
//   - n: number of values to read
//
// Returns:
//   - []uint32: the decoded values
//   - error: ErrChunkOverrun if the chunk is too short
func ReadUint32s(r ChunkReader, n int) ([]uint32, error) {
	out := make([]uint32, n)
	if n == 0 {
		return out, nil
	}
	if err := r.ReadStruct(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRest reads every unread byte of the open chunk.
func ReadRest(r ChunkReader) ([]byte, error) {
	out := make([]byte, r.Remaining())
	if err := r.ReadFull(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadString reads the open chunk's payload as a zero terminated string.
func ReadString(r ChunkReader) (string, error) {
	data, err := ReadRest(r)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}
