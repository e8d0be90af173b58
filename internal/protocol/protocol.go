package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Protocol constants
const (
	// Packet types
	PacketTypeAnchorEvent = 0x01

	// Event kinds
	KindAdded   = 0x01
	KindUpdated = 0x02
	KindRemoved = 0x03

	// Flags
	FlagTracked = 0x01

	// Packet structure sizes
	HeaderSize        = 8  // 1 + 2 + 1 + 1 + 1 + 2 bytes
	AnchorIDSize      = 16 // UUID bytes
	PoseSize          = 64 // 16 x float32, column-major
	ExtentSize        = 12 // 3 x float32
	AnchorPayloadSize = AnchorIDSize + PoseSize + ExtentSize
	MaxNameLen        = 255
	MaxPacketSize     = HeaderSize + AnchorPayloadSize + MaxNameLen
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][Kind:1][Flags:1][NameLen:1][Reserved:2]
type Header struct {
	PacketType uint8  // 0x01=AnchorEvent
	PacketLen  uint16 // Total packet size (header + payload)
	Kind       uint8  // 0x01=Added, 0x02=Updated, 0x03=Removed
	Flags      uint8  // bit 0 = tracked
	NameLen    uint8  // Length of the trailing name in bytes
	Reserved   uint16
}

// AnchorPayload represents the anchor event payload
// Layout: [AnchorID:16][Pose:64][Extent:12][Name:NameLen]
type AnchorPayload struct {
	AnchorID [AnchorIDSize]byte
	Pose     [16]float32 // Column-major 4x4 transform
	Extent   [3]float32  // Bounding box size in meters
	Name     string      // UTF-8 reference object name, may be empty
}

// ParsedPacket represents a fully parsed anchor event packet
type ParsedPacket struct {
	Header *Header
	Anchor *AnchorPayload
}

// Tracked reports whether the tracked flag is set
func (h *Header) Tracked() bool {
	return h.Flags&FlagTracked != 0
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		Kind:       data[3],
		Flags:      data[4],
		NameLen:    data[5],
		Reserved:   binary.BigEndian.Uint16(data[6:8]),
	}

	return header, nil
}

// ParseAnchorPayload parses the fixed anchor payload followed by nameLen name bytes
func ParseAnchorPayload(data []byte, nameLen int) (*AnchorPayload, error) {
	if len(data) < AnchorPayloadSize+nameLen {
		return nil, fmt.Errorf("anchor payload too short: expected %d bytes, got %d",
			AnchorPayloadSize+nameLen, len(data))
	}

	payload := &AnchorPayload{}
	copy(payload.AnchorID[:], data[0:AnchorIDSize])

	offset := AnchorIDSize
	for i := range payload.Pose {
		payload.Pose[i] = math.Float32frombits(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}
	for i := range payload.Extent {
		payload.Extent[i] = math.Float32frombits(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	name := data[offset : offset+nameLen]
	if !utf8.Valid(name) {
		return nil, fmt.Errorf("name is not valid UTF-8")
	}
	payload.Name = string(name)

	for _, v := range payload.Pose {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("pose contains non-finite value")
		}
	}

	return payload, nil
}

// ParsePacket parses a complete anchor event packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	// Parse header first
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Validate packet length matches actual data
	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	// Validate header fields
	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	payload, err := ParseAnchorPayload(data[HeaderSize:], int(header.NameLen))
	if err != nil {
		return nil, fmt.Errorf("failed to parse anchor payload: %w", err)
	}

	return &ParsedPacket{Header: header, Anchor: payload}, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if !IsValidKind(header.Kind) {
		return fmt.Errorf("invalid event kind: 0x%02x", header.Kind)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	expectedPayloadSize := int(header.PacketLen) - HeaderSize
	if expectedPayloadSize != AnchorPayloadSize+int(header.NameLen) {
		return fmt.Errorf("anchor payload size mismatch: expected %d, got %d",
			AnchorPayloadSize+int(header.NameLen), expectedPayloadSize)
	}

	return nil
}

// EncodePacket builds a packet for the given event kind, flags and payload
func EncodePacket(kind, flags uint8, payload *AnchorPayload) ([]byte, error) {
	if !IsValidKind(kind) {
		return nil, fmt.Errorf("invalid event kind: 0x%02x", kind)
	}
	if len(payload.Name) > MaxNameLen {
		return nil, fmt.Errorf("name too long: %d bytes (maximum %d)", len(payload.Name), MaxNameLen)
	}
	if !utf8.ValidString(payload.Name) {
		return nil, fmt.Errorf("name is not valid UTF-8")
	}

	packetLen := HeaderSize + AnchorPayloadSize + len(payload.Name)
	data := make([]byte, packetLen)

	data[0] = PacketTypeAnchorEvent
	binary.BigEndian.PutUint16(data[1:3], uint16(packetLen))
	data[3] = kind
	data[4] = flags
	data[5] = uint8(len(payload.Name))

	offset := HeaderSize
	copy(data[offset:], payload.AnchorID[:])
	offset += AnchorIDSize
	for _, v := range payload.Pose {
		binary.BigEndian.PutUint32(data[offset:], math.Float32bits(v))
		offset += 4
	}
	for _, v := range payload.Extent {
		binary.BigEndian.PutUint32(data[offset:], math.Float32bits(v))
		offset += 4
	}
	copy(data[offset:], payload.Name)

	return data, nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeAnchorEvent
}

// IsValidKind checks if the event kind is valid
func IsValidKind(kind uint8) bool {
	return kind == KindAdded || kind == KindUpdated || kind == KindRemoved
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType, kind string

	switch h.PacketType {
	case PacketTypeAnchorEvent:
		packetType = "AnchorEvent"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	switch h.Kind {
	case KindAdded:
		kind = "Added"
	case KindUpdated:
		kind = "Updated"
	case KindRemoved:
		kind = "Removed"
	default:
		kind = fmt.Sprintf("Unknown(0x%02x)", h.Kind)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, Kind:%s, Tracked:%t, NameLen:%d}",
		packetType, h.PacketLen, kind, h.Tracked(), h.NameLen)
}

// String returns a human-readable representation of the anchor payload
func (a *AnchorPayload) String() string {
	return fmt.Sprintf("AnchorPayload{Name:%q, Position:[%g %g %g], Extent:%v}",
		a.Name, a.Pose[12], a.Pose[13], a.Pose[14], a.Extent)
}
