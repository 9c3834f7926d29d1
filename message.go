// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

// Meta bit flags carried in byte 12 of a frame. Only two of the eight bits
// are defined today; the remaining bits are reserved and must be zero on
// encode and ignored (not rejected) on decode.
const (
	MetaWithBody byte = 0x80
	MetaReq      byte = 0x40
)

// DisconnectMsgName is the name synthesized locally by a reader's decoder
// on EOF or an unrecoverable stream error. It is never observed on the wire.
const DisconnectMsgName = "disconnect"

// HandshakeMsgName is the mandatory first message name on every connection.
const HandshakeMsgName = "handshake"

// Message is the in-memory representation of one frame, plus the
// server-populated Client field that never travels on the wire.
type Message struct {
	ID   ID
	Meta byte
	Name string
	Body []byte // nil means "no body", distinct from an empty body

	// Client is the connection id of the sender, populated by the server
	// reader on receipt. Empty on the wire and for client-side messages.
	Client string
}

// Req reports whether the request meta bit is set.
func (m Message) Req() bool {
	return m.Meta&MetaReq != 0
}

// WithBody reports whether the with-body meta bit is set.
func (m Message) WithBody() bool {
	return m.Meta&MetaWithBody != 0
}

// metaFor computes the meta byte for an outbound message from the intent
// (request or not) and whether a body is being attached.
func metaFor(req bool, hasBody bool) byte {
	var meta byte
	if req {
		meta |= MetaReq
	}
	if hasBody {
		meta |= MetaWithBody
	}
	return meta
}

// disconnectMessage builds the terminal frame a decoder delivers once to its
// consumer when the underlying stream ends.
func disconnectMessage() Message {
	return Message{Name: DisconnectMsgName}
}
