// Package wire implements the scheduler's connection framing and
// pluggable authentication/encryption channel (spec §4.A): every packet
// is "PKTV1" + a 1-byte type + a 4-byte big-endian length + payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic is the 5-byte packet prefix (spec §4.A).
var magic = [5]byte{'P', 'K', 'T', 'V', '1'}

// PacketType tags a framed packet's payload kind.
type PacketType byte

const (
	PacketAuthCtxData PacketType = iota + 1
	PacketAuthErrData
	PacketAuthCtxOK
	PacketAuthEncryptedData
	PacketAuthLastMsg
	PacketApplication // cleartext application payload, used when no auth/encryption is configured
)

func (t PacketType) String() string {
	switch t {
	case PacketAuthCtxData:
		return "AUTH_CTX_DATA"
	case PacketAuthErrData:
		return "AUTH_ERR_DATA"
	case PacketAuthCtxOK:
		return "AUTH_CTX_OK"
	case PacketAuthEncryptedData:
		return "AUTH_ENCRYPTED_DATA"
	case PacketAuthLastMsg:
		return "AUTH_LAST_MSG"
	case PacketApplication:
		return "APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// maxPacketLen bounds a single packet's payload to guard against a
// corrupt or hostile length field causing an unbounded allocation. Any
// framing error, including an oversize length, is fatal to the connection
// (spec §4.A: "any framing error... is fatal to the connection").
const maxPacketLen = 64 << 20

// WritePacket frames and writes one packet: magic, type, length, payload.
func WritePacket(w io.Writer, typ PacketType, payload []byte) error {
	buf := make([]byte, 0, len(magic)+1+4+len(payload))
	buf = append(buf, magic[:]...)
	buf = append(buf, byte(typ))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads and validates one framed packet.
func ReadPacket(r io.Reader) (PacketType, []byte, error) {
	var hdr [5 + 1 + 4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("wire: framing error reading header: %w", err)
	}
	for i := range magic {
		if hdr[i] != magic[i] {
			return 0, nil, fmt.Errorf("wire: framing error: bad magic")
		}
	}
	typ := PacketType(hdr[5])
	n := binary.BigEndian.Uint32(hdr[6:10])
	if n > maxPacketLen {
		return 0, nil, fmt.Errorf("wire: framing error: packet length %d exceeds maximum", n)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("wire: framing error reading payload: %w", err)
		}
	}
	return typ, payload, nil
}
