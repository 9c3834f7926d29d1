// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkReader replays a fixed byte slice in fixed-size reads, the way
// framer_test.go's scriptedReader drives its decoder with synthetic
// chunk boundaries.
type chunkReader struct {
	data []byte
	size int
	off  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.off+n > len(r.data) {
		n = len(r.data) - r.off
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}

func sampleMessage() (ID, byte, string, []byte) {
	var id ID
	for i := range id {
		id[i] = byte(i + 1)
	}
	return id, MetaReq | MetaWithBody, "repeat", []byte("this")
}

// Property 1: frame round-trip at every chunk size named in the spec.
func TestFrameRoundTripAcrossChunkSizes(t *testing.T) {
	id, meta, name, body := sampleMessage()
	frame := Encode(id, meta, name, body)

	for _, chunkSize := range []int{1, 7, 13, 14, 21, 22, len(frame)} {
		chunkSize := chunkSize
		t.Run("", func(t *testing.T) {
			var got []Message
			err := DecodeStream(&chunkReader{data: frame, size: chunkSize}, chunkSize, 0, func(msg Message) MsgReading {
				got = append(got, msg)
				return Continue
			})
			require.NoError(t, err)
			require.Len(t, got, 2) // the real frame, then the synthesized disconnect
			require.Equal(t, id, got[0].ID)
			require.Equal(t, meta, got[0].Meta)
			require.Equal(t, name, got[0].Name)
			require.Equal(t, body, got[0].Body)
		})
	}
}

func TestFrameRoundTripNoBody(t *testing.T) {
	var id ID
	id[0] = 9
	frame := Encode(id, 0, "ping", nil)

	var got []Message
	err := DecodeStream(bytes.NewReader(frame), 3, 0, func(msg Message) MsgReading {
		got = append(got, msg)
		return Continue
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ping", got[0].Name)
	require.Nil(t, got[0].Body)
	require.False(t, got[0].WithBody())
}

// Property 2: K concatenated frames, split across arbitrary chunk
// boundaries, decode to exactly K frames in order.
func TestFramingRobustnessAcrossConcatenatedFrames(t *testing.T) {
	var buf bytes.Buffer
	var names []string
	for i := 0; i < 25; i++ {
		var id ID
		id[0] = byte(i)
		name := string(rune('a' + i%26))
		names = append(names, name)
		body := []byte(nil)
		meta := byte(0)
		if i%3 == 0 {
			body = bytes.Repeat([]byte{byte(i)}, i)
			meta = MetaWithBody
		}
		buf.Write(Encode(id, meta, name, body))
	}

	for _, chunkSize := range []int{1, 5, 17, 64} {
		chunkSize := chunkSize
		t.Run("", func(t *testing.T) {
			var got []Message
			err := DecodeStream(bytes.NewReader(buf.Bytes()), chunkSize, 0, func(msg Message) MsgReading {
				got = append(got, msg)
				return Continue
			})
			require.NoError(t, err)
			require.Len(t, got, len(names)+1)
			for i, name := range names {
				require.Equal(t, name, got[i].Name)
			}
			require.Equal(t, DisconnectMsgName, got[len(names)].Name)
		})
	}
}

// Property 3: after K real frames, exactly one terminal disconnect frame
// with the zero id and empty meta is delivered, and never more than one.
func TestTerminalDisconnectFrame(t *testing.T) {
	id, meta, name, body := sampleMessage()
	frame := Encode(id, meta, name, body)

	var got []Message
	err := DecodeStream(bytes.NewReader(frame), 4, 0, func(msg Message) MsgReading {
		got = append(got, msg)
		return Continue
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	last := got[len(got)-1]
	require.Equal(t, DisconnectMsgName, last.Name)
	require.True(t, last.ID.Zero())
	require.Equal(t, byte(0), last.Meta)
	require.Nil(t, last.Body)
}

func TestDecoderRejectsOversizedBody(t *testing.T) {
	id, _, name, body := sampleMessage()
	frame := Encode(id, MetaWithBody, name, body)

	err := DecodeStream(bytes.NewReader(frame), 8, uint64(len(body)-1), func(Message) MsgReading {
		return Continue
	})
	require.Error(t, err)
}
