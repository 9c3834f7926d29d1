// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// connIDAlphabet is the 64-character alphabet used to render a connection id
// as 12 printable bytes: the reference implementation uses exactly this
// scheme (random bytes + time bits, each reduced to 6 bits and mapped through
// a 64-entry table) so connection ids stay URL-safe without base64 padding
// concerns.
const connIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

// ID is the 12-byte opaque message identifier carried on the wire. The core
// never interprets it beyond equality comparison ("a cookie rather than a
// structured value", per the wire contract); a plain comparable array keeps
// dispatch's msg_id match a single "==" instead of a big-integer dependency.
type ID [12]byte

// Zero reports whether id is the all-zero ID used by the synthesized
// disconnect frame.
func (id ID) Zero() bool {
	return id == ID{}
}

// NewMsgID generates a fresh 12-byte message id: a 4-byte wall-clock
// sub-second nanosecond prefix followed by the first 8 bytes of a UUIDv4
// (random apart from the 4 version bits in byte 6).
// Uniqueness-with-high-probability within a connection's lifetime is the
// only requirement (see spec's design notes on clock/randomness); this is
// not required to be monotonic.
func NewMsgID() ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Nanosecond()))
	rnd := uuid.New()
	copy(id[4:12], rnd[:8])
	return id
}

// NewConnID renders a fresh server-assigned connection id as 12 printable
// ASCII bytes drawn from connIDAlphabet, mirroring the reference
// implementation's uid() scheme: a random high-entropy part plus a
// low-entropy time part, assembled so the result reads as an opaque token.
func NewConnID() string {
	rnd := uuid.New()
	var out [12]byte
	for i := 0; i < 7; i++ {
		out[i] = connIDAlphabet[int(rnd[i])&63]
	}
	ns := uint32(time.Now().Nanosecond())
	for i := 7; i < 12; i++ {
		out[i] = connIDAlphabet[ns&63]
		ns >>= 6
	}
	return string(out[:])
}
