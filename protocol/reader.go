package protocol

import (
	"io"
)

const defaultReadBufferSize = 4096

// Reader accumulates bytes from a stream until a whole frame is buffered.
// A partial frame is never consumed: it stays in the buffer and the next read
// appends to it. Only one read is outstanding at a time, so a Reader must be
// owned by a single receive loop.
type Reader struct {
	r          io.Reader
	buf        []byte
	start, end int // buffered bytes are buf[start:end]
}

// NewReader returns a Reader with an initial buffer of size bytes. The buffer
// grows on demand to hold the largest frame seen.
func NewReader(r io.Reader, size int) *Reader {
	if size < RequestHeaderSize {
		size = defaultReadBufferSize
	}
	return &Reader{r: r, buf: make([]byte, size)}
}

// Buffered returns the number of bytes read from the stream but not yet consumed.
func (r *Reader) Buffered() int {
	return r.end - r.start
}

// ReadRequest returns the next request header and its payload.
// The payload aliases the internal buffer and is only valid until the next call.
func (r *Reader) ReadRequest() (RequestHeader, []byte, error) {
	for {
		h, ok, err := TryReadRequestHeader(r.buf[r.start:r.end])
		if err != nil {
			return h, nil, err
		}
		need := RequestHeaderSize
		if ok {
			need += int(h.PayloadSize)
			if r.Buffered() >= need {
				body := r.buf[r.start+RequestHeaderSize : r.start+need]
				r.start += need
				return h, body, nil
			}
		}
		if err := r.fill(need); err != nil {
			return h, nil, err
		}
	}
}

// ReadResponse returns the next response header and its payload.
// The payload aliases the internal buffer and is only valid until the next call.
func (r *Reader) ReadResponse() (ResponseHeader, []byte, error) {
	for {
		h, ok, err := TryReadResponseHeader(r.buf[r.start:r.end])
		if err != nil {
			return h, nil, err
		}
		need := ResponseHeaderSize
		if ok {
			need += int(h.PayloadSize)
			if r.Buffered() >= need {
				body := r.buf[r.start+ResponseHeaderSize : r.start+need]
				r.start += need
				return h, body, nil
			}
		}
		if err := r.fill(need); err != nil {
			return h, nil, err
		}
	}
}

// fill performs one read from the stream, first making room for need bytes
// starting at r.start.
func (r *Reader) fill(need int) error {
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
	if len(r.buf)-r.start < need {
		if need > len(r.buf) {
			grown := make([]byte, max(need, 2*len(r.buf)))
			r.end = copy(grown, r.buf[r.start:r.end])
			r.buf = grown
		} else {
			r.end = copy(r.buf, r.buf[r.start:r.end])
		}
		r.start = 0
	}

	n, err := r.r.Read(r.buf[r.end:])
	r.end += n
	if n > 0 || err == nil {
		return nil
	}
	if err == io.EOF && r.Buffered() > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}
