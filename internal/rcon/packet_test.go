package rcon

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		id      int32
		typ     int32
		payload string
	}{
		{name: "auth", id: 1, typ: TypeAuth, payload: "hunter2"},
		{name: "exec", id: 2, typ: TypeExec, payload: "kubevote process Steve PMC"},
		{name: "empty payload", id: 7, typ: TypeResponse, payload: ""},
		{name: "unicode", id: 3, typ: TypeExec, payload: "say héllo ★"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writePacket(&buf, tt.id, tt.typ, tt.payload))

			id, typ, payload, err := readPacket(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestWritePacketFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, 1, TypeAuth, "pw"))

	raw := buf.Bytes()
	// length covers id + type + payload + two NULs.
	require.Equal(t, uint32(8+2+2), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(TypeAuth), binary.LittleEndian.Uint32(raw[8:12]))
	assert.Equal(t, byte(0), raw[len(raw)-1])
	assert.Equal(t, byte(0), raw[len(raw)-2])
}

func TestReadPacketHonoursDeclaredLength(t *testing.T) {
	// Payload with an embedded NUL: the declared length wins over the
	// first NUL pair.
	payload := "abc\x00def"
	length := 8 + len(payload) + 2

	var buf bytes.Buffer
	raw := make([]byte, 4+length)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(length))
	binary.LittleEndian.PutUint32(raw[4:8], 9)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(TypeResponse))
	copy(raw[12:], payload)
	buf.Write(raw)

	id, typ, got, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(9), id)
	assert.Equal(t, int32(TypeResponse), typ)
	assert.Equal(t, payload, got)
}

func TestReadPacketRejectsBadLength(t *testing.T) {
	tests := []struct {
		name   string
		length int32
	}{
		{name: "too small", length: 4},
		{name: "negative", length: -1},
		{name: "huge", length: 1 << 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(tt.length))
			buf.Write(lenBuf[:])

			_, _, _, err := readPacket(&buf)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}
