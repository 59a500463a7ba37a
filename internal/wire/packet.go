package wire

import (
	"cipherlink/internal/domain"
)

type packetRecord struct {
	Version   uint8            `json:"version" cbor:"0,keyasint"`
	Handshake *handshakeRecord `json:"handshake,omitempty" cbor:"1,keyasint,omitempty"`
	Message   *messageRecord   `json:"message" cbor:"2,keyasint"`
}

func (r *packetRecord) version() uint8 { return r.Version }

func newPacketRecord(p domain.Packet) *packetRecord {
	r := &packetRecord{Version: Version, Message: newMessageRecord(p.Message)}
	if p.Handshake != nil {
		r.Handshake = newHandshakeRecord(*p.Handshake)
	}
	return r
}

func (r *packetRecord) packet() (domain.Packet, error) {
	var p domain.Packet
	if r.Message == nil {
		return domain.Packet{}, errMissingField("message")
	}
	m, err := r.Message.message()
	if err != nil {
		return domain.Packet{}, err
	}
	p.Message = m
	if r.Handshake != nil {
		hs, err := r.Handshake.handshake()
		if err != nil {
			return domain.Packet{}, err
		}
		p.Handshake = &hs
	}
	return p, nil
}

// MarshalPacket encodes a packet as CBOR.
func MarshalPacket(p domain.Packet) ([]byte, error) {
	return marshalCBOR(newPacketRecord(p))
}

// UnmarshalPacket decodes a CBOR packet.
func UnmarshalPacket(data []byte) (domain.Packet, error) {
	var r packetRecord
	if err := unmarshalCBOR(data, &r); err != nil {
		return domain.Packet{}, err
	}
	return r.packet()
}

// MarshalPacketJSON encodes a packet as JSON.
func MarshalPacketJSON(p domain.Packet) ([]byte, error) {
	return marshalJSON(newPacketRecord(p))
}

// UnmarshalPacketJSON decodes a JSON packet.
func UnmarshalPacketJSON(data []byte) (domain.Packet, error) {
	var r packetRecord
	if err := unmarshalJSON(data, &r); err != nil {
		return domain.Packet{}, err
	}
	return r.packet()
}
