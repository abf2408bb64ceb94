package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types as used by the Source RCON protocol the game speaks.
const (
	TypeAuth         = 3
	TypeExec         = 2
	TypeResponse     = 0
	TypeAuthResponse = 2
)

const (
	// headerSize is the two int32 fields (id, type) that follow the
	// length prefix.
	headerSize = 8
	// terminatorSize is the payload NUL plus the packet NUL.
	terminatorSize = 2

	// maxPacketSize bounds what we accept from the wire. The game never
	// sends responses anywhere near this.
	maxPacketSize = 1 << 20
)

// writePacket frames and writes one packet: little-endian length, id and
// type, the UTF-8 payload, and the two trailing NUL bytes.
func writePacket(w io.Writer, id, typ int32, payload string) error {
	length := headerSize + len(payload) + terminatorSize

	buf := make([]byte, 4+length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:], payload)
	// Trailing two bytes are already zero.

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// readPacket reads one packet from r. The declared length on the wire is
// honoured exactly: the payload is everything between the header and the
// two trailing NULs, embedded NULs included.
func readPacket(r io.Reader) (id, typ int32, payload string, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, 0, "", fmt.Errorf("reading packet length: %w", err)
	}

	length := int(int32(binary.LittleEndian.Uint32(lenBuf[:])))
	if length < headerSize+terminatorSize || length > maxPacketSize {
		return 0, 0, "", fmt.Errorf("%w: invalid packet length %d", ErrProtocol, length)
	}

	data := make([]byte, length)
	if _, err = io.ReadFull(r, data); err != nil {
		return 0, 0, "", fmt.Errorf("reading packet body: %w", err)
	}

	id = int32(binary.LittleEndian.Uint32(data[0:4]))
	typ = int32(binary.LittleEndian.Uint32(data[4:8]))
	payload = string(data[headerSize : length-terminatorSize])
	return id, typ, payload, nil
}
