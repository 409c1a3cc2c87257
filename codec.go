package lsm

import "unicode/utf8"

// codec converts payloads at every engine boundary. Binary mode passes
// bytes through; text mode additionally requires valid UTF-8 in both
// directions. The mode is fixed when the connection is constructed and
// applies uniformly to keys and values, including those produced by
// cursors and range iterators.
type codec struct {
	text bool
}

// encode validates an outgoing key or value.
func (c codec) encode(p []byte) ([]byte, error) {
	if len(p) > MaxPayloadSize {
		return nil, NewErrorf(ErrMismatch, "payload of %d bytes exceeds the engine limit", len(p))
	}
	if c.text && !utf8.Valid(p) {
		return nil, NewErrorf(ErrMismatch, "invalid UTF-8 in text-mode payload")
	}
	return p, nil
}

// decode copies an engine-owned buffer out and validates it. Engine
// buffers are only stable until the next engine call, so the copy is
// mandatory, not an optimization.
func (c codec) decode(p []byte) ([]byte, error) {
	if c.text && !utf8.Valid(p) {
		return nil, NewErrorf(ErrMismatch, "stored payload is not valid UTF-8")
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}
