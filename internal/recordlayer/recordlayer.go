// Package recordlayer is a reference implementation of the
// handshake.RecordLayer collaborator (spec.md §1, §6): it frames
// handshake messages onto a net.Conn and reassembles them on read.
//
// It is deliberately NOT a full RFC 8446 record layer. AEAD sealing is
// named as an external collaborator the handshake core never touches
// (spec.md §1), and this package does not supply one either: once a
// transform is installed via SetInboundTransform/SetOutboundTransform it
// is recorded but not applied, so this type only carries a handshake
// through the plaintext ClientHello/ServerHello portion before a real
// TLS record layer would switch to encrypted records. It exists to let tests and the demo CLI exercise wire framing
// against a real net.Conn without standing up a full AEAD stack.
package recordlayer

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/caddyserver/tls13/keyschedule"
)

const (
	contentTypeChangeCipherSpec uint8 = 20
	contentTypeAlert            uint8 = 21
	contentTypeHandshake        uint8 = 22

	legacyRecordVersion uint16 = 0x0303

	maxRecordPayload = 1 << 14 // RFC 8446 §5.1
)

// RecordLayer frames handshake messages as TLS records over conn.
type RecordLayer struct {
	conn net.Conn

	pending []byte // bytes read from conn not yet consumed as a full handshake message

	inbound  keyschedule.Transform
	outbound keyschedule.Transform
	hasIn    bool
	hasOut   bool
}

// New wraps conn for handshake message framing.
func New(conn net.Conn) *RecordLayer {
	return &RecordLayer{conn: conn}
}

// WriteHandshakeMessage writes one handshake message (msgType + a
// 3-byte length + body) as one or more TLS records, fragmenting at
// maxRecordPayload per RFC 8446 §5.1.
func (r *RecordLayer) WriteHandshakeMessage(msgType uint8, body []byte) error {
	header := make([]byte, 4)
	header[0] = msgType
	header[1] = byte(len(body) >> 16)
	header[2] = byte(len(body) >> 8)
	header[3] = byte(len(body))
	msg := append(header, body...)

	for len(msg) > 0 {
		n := len(msg)
		if n > maxRecordPayload {
			n = maxRecordPayload
		}
		if err := r.writeRecord(contentTypeHandshake, msg[:n]); err != nil {
			return err
		}
		msg = msg[n:]
	}
	return nil
}

// ReadHandshakeMessage reads and reassembles the next complete
// handshake message, pulling additional records as needed.
func (r *RecordLayer) ReadHandshakeMessage() (uint8, []byte, error) {
	for {
		if msgType, body, ok := r.takePending(); ok {
			return msgType, body, nil
		}
		payload, err := r.readRecord(contentTypeHandshake)
		if err != nil {
			return 0, nil, err
		}
		r.pending = append(r.pending, payload...)
	}
}

func (r *RecordLayer) takePending() (uint8, []byte, bool) {
	if len(r.pending) < 4 {
		return 0, nil, false
	}
	msgType := r.pending[0]
	length := int(r.pending[1])<<16 | int(r.pending[2])<<8 | int(r.pending[3])
	if len(r.pending) < 4+length {
		return 0, nil, false
	}
	body := append([]byte(nil), r.pending[4:4+length]...)
	r.pending = r.pending[4+length:]
	return msgType, body, true
}

// SetInboundTransform records the handshake/application keys the
// handshake core computed for decrypting server records. No AEAD is
// applied by this reference implementation; see the package doc.
func (r *RecordLayer) SetInboundTransform(t keyschedule.Transform) error {
	r.inbound, r.hasIn = t, true
	return nil
}

// SetOutboundTransform records the keys for encrypting client records.
func (r *RecordLayer) SetOutboundTransform(t keyschedule.Transform) error {
	r.outbound, r.hasOut = t, true
	return nil
}

// WriteChangeCipherSpec emits the single-byte compatibility-mode
// ChangeCipherSpec record RFC 8446 §5.1's "middlebox compatibility mode"
// calls for.
func (r *RecordLayer) WriteChangeCipherSpec() error {
	return r.writeRecord(contentTypeChangeCipherSpec, []byte{0x01})
}

func (r *RecordLayer) writeRecord(contentType uint8, payload []byte) error {
	header := make([]byte, 5)
	header[0] = contentType
	binary.BigEndian.PutUint16(header[1:3], legacyRecordVersion)
	binary.BigEndian.PutUint16(header[3:5], uint16(len(payload)))
	if _, err := r.conn.Write(header); err != nil {
		return fmt.Errorf("recordlayer: write header: %w", err)
	}
	if _, err := r.conn.Write(payload); err != nil {
		return fmt.Errorf("recordlayer: write payload: %w", err)
	}
	return nil
}

func (r *RecordLayer) readRecord(want uint8) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r.conn, header); err != nil {
		return nil, fmt.Errorf("recordlayer: read header: %w", err)
	}
	contentType := header[0]
	length := binary.BigEndian.Uint16(header[3:5])
	if length > maxRecordPayload+256 {
		return nil, fmt.Errorf("recordlayer: record too large: %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.conn, payload); err != nil {
		return nil, fmt.Errorf("recordlayer: read payload: %w", err)
	}
	switch contentType {
	case contentTypeAlert:
		return nil, fmt.Errorf("recordlayer: peer sent alert record: %x", payload)
	case want:
		return payload, nil
	default:
		return nil, fmt.Errorf("recordlayer: unexpected record content type %d, want %d", contentType, want)
	}
}
