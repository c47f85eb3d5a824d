package common

import (
	"encoding/binary"
	"math"
)

// ByteWriter packs little-endian scalars into a fixed-size buffer for GPU upload.
// Writes past the end of the buffer panic, which catches layout mistakes in Marshal methods.
type ByteWriter struct {
	buf []byte
	off int
}

// NewByteWriter allocates a zeroed buffer of size bytes.
func NewByteWriter(size int) *ByteWriter {
	return &ByteWriter{buf: make([]byte, size)}
}

func (w *ByteWriter) Float32(v float32) *ByteWriter {
	binary.LittleEndian.PutUint32(w.buf[w.off:w.off+4], math.Float32bits(v))
	w.off += 4
	return w
}

func (w *ByteWriter) Uint32(v uint32) *ByteWriter {
	binary.LittleEndian.PutUint32(w.buf[w.off:w.off+4], v)
	w.off += 4
	return w
}

func (w *ByteWriter) Vec4(v [4]float32) *ByteWriter {
	for _, f := range v {
		w.Float32(f)
	}
	return w
}

// Vec3 writes v followed by one padding float, matching the WGSL vec3 alignment of 16 bytes.
func (w *ByteWriter) Vec3(v Vec3, pad float32) *ByteWriter {
	return w.Vec4([4]float32{v[0], v[1], v[2], pad})
}

func (w *ByteWriter) Mat4(m Mat4) *ByteWriter {
	for _, f := range m {
		w.Float32(f)
	}
	return w
}

// Skip advances the write offset by n bytes, leaving them zeroed.
func (w *ByteWriter) Skip(n int) *ByteWriter {
	w.off += n
	return w
}

// Offset reports the number of bytes written or skipped so far.
func (w *ByteWriter) Offset() int { return w.off }

// Bytes returns the whole buffer, including any unwritten tail.
func (w *ByteWriter) Bytes() []byte { return w.buf }
