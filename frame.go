// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Wire layout of a single frame, big-endian throughout:
//
//	offset  size       field
//	0       12         id
//	12      1          meta
//	13      1          name_len (0..=255)
//	14      name_len   name bytes
//	14+n    8          body_len, present iff meta & MetaWithBody
//	22+n    body_len   body bytes
//
// Minimum frame length is 14 bytes (no body). The two-phase length prefix
// (name, then optional body) lets both peers bound memory before reading
// the body, keeps the no-body fast path to 14 bytes, and makes the decoder
// restart-safe across arbitrary chunking of the underlying stream.
package congo

import (
	"encoding/binary"
	"io"
)

// MsgReading is returned by a decoder consumer callback to indicate whether
// decoding should continue or stop early.
type MsgReading uint8

const (
	Continue MsgReading = iota
	Stop
)

// Encode renders a message as a single contiguous frame buffer, ready to be
// handed to a stream writer in one call. The caller chooses meta explicitly
// (see metaFor) so that the same encoder serves requests, replies, and
// fire-and-forget sends without branching here.
func Encode(id ID, meta byte, name string, body []byte) []byte {
	hasBody := meta&MetaWithBody != 0

	total := 14 + len(name)
	if hasBody {
		total += 8 + len(body)
	}

	buf := make([]byte, total)
	copy(buf[0:12], id[:])
	buf[12] = meta
	buf[13] = byte(len(name))
	copy(buf[14:14+len(name)], name)

	if hasBody {
		off := 14 + len(name)
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(len(body)))
		copy(buf[off+8:], body)
	}

	return buf
}

// decodeFrame parses one complete frame (exactly msgEnd bytes, no trailing
// data) into a Message. Callers must only pass slices already established
// as one whole frame by the Decoder.
func decodeFrame(frame []byte) Message {
	msg := Message{
		Meta: frame[12],
	}
	copy(msg.ID[:], frame[0:12])

	nameLen := int(frame[13])
	nameEnd := 14 + nameLen
	msg.Name = string(frame[14:nameEnd])

	if msg.Meta&MetaWithBody != 0 {
		bodyLen := binary.BigEndian.Uint64(frame[nameEnd : nameEnd+8])
		body := make([]byte, bodyLen)
		copy(body, frame[nameEnd+8:nameEnd+8+int(bodyLen)])
		msg.Body = body
	}

	return msg
}

// Decoder is a stateful, incremental stream parser. Each call to Feed
// advances as far as possible through the accumulated bytes, emitting every
// complete frame found (in arrival order) to the supplied callback before
// returning. A Decoder must not be shared across goroutines without external
// synchronization; the server and client each drive exactly one Decoder per
// connection from a single reader goroutine.
type Decoder struct {
	acc []byte

	metaParsed    bool
	nameLenParsed bool
	bodyLenParsed bool

	meta     byte
	withBody bool
	nameEnd  int
	bodyLen  uint64
	msgEnd   int

	// MaxBodyLen caps the accepted body length; zero means unlimited.
	MaxBodyLen uint64
}

// NewDecoder returns a fresh Decoder with no accumulated bytes.
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) resetParse() {
	d.metaParsed = false
	d.nameLenParsed = false
	d.bodyLenParsed = false
	d.withBody = false
	d.nameEnd = 0
	d.bodyLen = 0
	d.msgEnd = 0
}

// advance captures as many header fields as the accumulated bytes allow,
// following the five-step algorithm from the wire format spec.
func (d *Decoder) advance() {
	if !d.metaParsed && len(d.acc) >= 13 {
		d.meta = d.acc[12]
		d.withBody = d.meta&MetaWithBody != 0
		d.metaParsed = true
	}
	if !d.nameLenParsed && len(d.acc) >= 14 {
		nameLen := int(d.acc[13])
		d.nameEnd = 14 + nameLen
		d.nameLenParsed = true
		if !d.withBody {
			d.msgEnd = d.nameEnd
		}
	}
	if d.withBody && d.nameLenParsed && !d.bodyLenParsed && len(d.acc) >= d.nameEnd+8 {
		d.bodyLen = binary.BigEndian.Uint64(d.acc[d.nameEnd : d.nameEnd+8])
		d.bodyLenParsed = true
		d.msgEnd = d.nameEnd + 8 + int(d.bodyLen)
	}
}

// Feed appends newly-arrived bytes and emits every frame that becomes
// complete, in order, to onMsg. It returns Stop as soon as onMsg does, in
// which case any bytes beyond the most recently emitted frame remain
// buffered for a later Feed call; it returns Continue once the accumulated
// bytes are exhausted without completing another frame.
func (d *Decoder) Feed(data []byte, onMsg func(Message) MsgReading) (MsgReading, error) {
	if len(data) > 0 {
		d.acc = append(d.acc, data...)
	}

	for {
		d.advance()

		if d.MaxBodyLen > 0 && d.bodyLen > d.MaxBodyLen {
			return Stop, ErrTooLong
		}

		if d.msgEnd == 0 || len(d.acc) < d.msgEnd {
			return Continue, nil
		}

		frame := make([]byte, d.msgEnd)
		copy(frame, d.acc[:d.msgEnd])

		remaining := copy(d.acc, d.acc[d.msgEnd:])
		d.acc = d.acc[:remaining]
		d.resetParse()

		msg := decodeFrame(frame)
		if onMsg(msg) == Stop {
			return Stop, nil
		}
	}
}

// DecodeStream drives a Decoder from r using chunkSize-sized reads (1 KiB
// when chunkSize <= 0, a reasonable default per the wire spec), invoking
// onMsg for every decoded frame. When r signals EOF or a read error, it
// synthesizes and delivers one terminal disconnectMessage, then returns. The
// consumer can stop early by returning Stop from any callback invocation.
func DecodeStream(r io.Reader, chunkSize int, maxBodyLen uint64, onMsg func(Message) MsgReading) error {
	d := NewDecoder()
	d.MaxBodyLen = maxBodyLen
	return decodeStreamWithDecoder(r, d, chunkSize, onMsg)
}

// decodeStreamWithDecoder drives an already-constructed Decoder from r. A
// caller that must first read a handful of frames synchronously (the
// client's handshake) and only then hand reading off to a permanent
// goroutine uses this directly, so bytes buffered inside d during the
// synchronous phase are not lost when the loop resumes.
func decodeStreamWithDecoder(r io.Reader, d *Decoder, chunkSize int, onMsg func(Message) MsgReading) error {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	scratch := make([]byte, chunkSize)

	for {
		n, rerr := r.Read(scratch)
		if n > 0 {
			reading, derr := d.Feed(scratch[:n], onMsg)
			if derr != nil {
				onMsg(disconnectMessage())
				return derr
			}
			if reading == Stop {
				return nil
			}
		}
		if rerr != nil {
			onMsg(disconnectMessage())
			if rerr == io.EOF {
				return nil
			}
			return IOError("read", rerr)
		}
	}
}
