package mbuf

import "io"

// Reader is a sequential, non-destructive view over a packet's bytes.
// Multiple readers can inspect the same packet independently.
type Reader struct {
	pkt *Packet
	off int
}

// NewReader returns a reader positioned at the start of the frame.
func NewReader(p *Packet) *Reader { return &Reader{pkt: p} }

// Read implements io.Reader over the frame bytes.
func (r *Reader) Read(b []byte) (int, error) {
	if r.off >= len(r.pkt.Data) {
		return 0, io.EOF
	}
	n := copy(b, r.pkt.Data[r.off:])
	r.off += n
	return n, nil
}

// ReadByte returns the next byte, or io.EOF at the end of the frame.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.pkt.Data) {
		return 0, io.EOF
	}
	b := r.pkt.Data[r.off]
	r.off++
	return b, nil
}

// Remaining returns the unread byte count.
func (r *Reader) Remaining() int {
	if n := len(r.pkt.Data) - r.off; n > 0 {
		return n
	}
	return 0
}

// Skip advances past n bytes, clamping at the end of the frame. It
// returns the number of bytes actually skipped.
func (r *Reader) Skip(n int) int {
	if n > r.Remaining() {
		n = r.Remaining()
	}
	r.off += n
	return n
}

// Rewind resets the reader to the start of the frame.
func (r *Reader) Rewind() { r.off = 0 }
