// Package radcodec implements the RADIUS wire codec: byte/crypto primitives,
// typed attribute values, and the packet header/attribute encode-decode
// pipeline, including authenticator and Message-Authenticator computation.
package radcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/npax/radius/raddict"
	"golang.org/x/exp/slices"
)

// Packet codes the codec knows how to read and write (specification §3,
// plus the CoA/Disconnect codes carried over as supplemental codes per
// SPEC_FULL.md §3 — the server dispatch loop is agnostic to which of these
// it receives).
const (
	AccessRequest      byte = 1
	AccessAccept       byte = 2
	AccessReject       byte = 3
	AccountingRequest  byte = 4
	AccountingResponse byte = 5
	AccessChallenge    byte = 11
	StatusServer       byte = 12
	StatusClient       byte = 13
	DisconnectRequest  byte = 40
	DisconnectACK      byte = 41
	DisconnectNAK      byte = 42
	CoARequest         byte = 43
	CoAACK             byte = 44
	CoANAK             byte = 45
)

// MaxPacketLength is the maximum encoded size of a RADIUS packet (RFC 2865 §3).
const MaxPacketLength = 4096

// MessageAuthenticatorName is the standard attribute name for the RFC 3579
// HMAC-MD5 integrity check.
const MessageAuthenticatorName = "Message-Authenticator"

// MessageAuthenticatorCode is its standard type code.
const MessageAuthenticatorCode byte = 80

// Packet is a decoded, or in-construction, RADIUS packet.
type Packet struct {
	Code          byte
	Identifier    byte
	Authenticator [16]byte
	Attributes    []Attribute

	dict *raddict.Dictionary
}

// NewPacket starts a new, empty outgoing packet of the given code. A nil
// dictionary falls back to raddict.Default().
func NewPacket(code byte, dict *raddict.Dictionary) *Packet {
	if dict == nil {
		dict = raddict.Default()
	}
	return &Packet{Code: code, dict: dict}
}

// NewResponse starts a response packet correlated to request by identifier,
// sharing its dictionary.
func NewResponse(request *Packet, code byte) *Packet {
	return &Packet{Code: code, Identifier: request.Identifier, dict: request.dict}
}

// Add resolves name in the packet's dictionary and appends a new attribute
// built from value.
func (p *Packet) Add(name string, value interface{}) error {
	d := p.dict.GetByName(name)
	if d == nil {
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalidValue, name)
	}
	a, err := NewAttribute(d, value)
	if err != nil {
		return err
	}
	p.Attributes = append(p.Attributes, a)
	return nil
}

// AddTagged is like Add but sets the attribute's tag (meaningful only if the
// dictionary marks the attribute Tagged).
func (p *Packet) AddTagged(name string, value interface{}, tag byte) error {
	d := p.dict.GetByName(name)
	if d == nil {
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalidValue, name)
	}
	a, err := NewAttribute(d, value)
	if err != nil {
		return err
	}
	a.Tag = tag
	p.Attributes = append(p.Attributes, a)
	return nil
}

// AddVSA appends a Vendor-Specific attribute wrapping the given sub-attributes.
func (p *Packet) AddVSA(vendorName string, subAttributes []Attribute) error {
	a, err := NewVendorSpecificAttribute(p.dict, vendorName, subAttributes)
	if err != nil {
		return err
	}
	p.Attributes = append(p.Attributes, a)
	return nil
}

// Get returns the first attribute with the given name.
func (p *Packet) Get(name string) (Attribute, bool) {
	for _, a := range p.Attributes {
		if a.Name() == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// GetAll returns every attribute with the given name, in order.
func (p *Packet) GetAll(name string) []Attribute {
	var out []Attribute
	for _, a := range p.Attributes {
		if a.Name() == name {
			out = append(out, a)
		}
	}
	return out
}

// Dictionary returns the dictionary this packet was built or decoded with.
func (p *Packet) Dictionary() *raddict.Dictionary { return p.dict }

// Copy builds a shallow copy of the packet, retaining only the attributes in
// positiveFilter (if non-empty) and dropping those in negativeFilter.
// Mirrors the reference library's Packet.Copy method.
func (p *Packet) Copy(positiveFilter, negativeFilter []string) *Packet {
	out := &Packet{Code: p.Code, Identifier: p.Identifier, Authenticator: p.Authenticator, dict: p.dict}
	for _, a := range p.Attributes {
		if len(positiveFilter) > 0 && !slices.Contains(positiveFilter, a.Name()) {
			continue
		}
		if slices.Contains(negativeFilter, a.Name()) {
			continue
		}
		out.Attributes = append(out.Attributes, a)
	}
	return out
}

// HasMessageAuthenticator reports whether the packet carries a
// Message-Authenticator attribute.
func (p *Packet) HasMessageAuthenticator() bool {
	_, ok := p.Get(MessageAuthenticatorName)
	return ok
}

func (p *Packet) messageAuthenticatorIndex() int {
	for i, a := range p.Attributes {
		if a.Code() == MessageAuthenticatorCode && a.VendorId() == raddict.StandardVendorId {
			return i
		}
	}
	return -1
}

// Encode serializes the packet to wire bytes, assigning identifier and
// computing the authenticator field per the rules in specification §4.1.
// requestAuthenticator is: the original Request Authenticator when encoding
// a response; ignored when encoding an Access-Request/Status-Server/
// Accounting-Request (those compute/own their own authenticator seed).
// reuseAuthenticator, when true and the packet is an Access-Request or
// Status-Server, forces the outgoing Authenticator to equal
// requestAuthenticator instead of generating a fresh one — used to produce a
// byte-identical retransmission (specification §4.4, "retransmits MUST be
// byte-identical").
func (p *Packet) Encode(secret string, identifier byte, requestAuthenticator [16]byte, reuseAuthenticator bool) ([]byte, error) {
	p.Identifier = identifier

	var authSeed [16]byte
	switch p.Code {
	case AccessRequest, StatusServer:
		if reuseAuthenticator {
			p.Authenticator = requestAuthenticator
		} else {
			p.Authenticator = BuildRandomAuthenticator()
		}
		authSeed = p.Authenticator
	case AccountingRequest:
		authSeed = [16]byte{}
	default:
		authSeed = requestAuthenticator
	}

	maIndex := p.messageAuthenticatorIndex()
	if maIndex >= 0 {
		p.Attributes[maIndex].Value = make([]byte, 16)
	}

	// Attributes are encoded exactly once. Any Salted attribute draws a
	// fresh random salt during this call; re-encoding a second time to
	// patch in the real Message-Authenticator would draw a *different*
	// salt and desynchronize the wire bytes from the HMAC computed over
	// them. Instead the placeholder (all-zero) Message-Authenticator value
	// is encoded here, and the real HMAC is spliced into the resulting
	// buffer in place below, at the same offset and length.
	attrBytes, err := p.encodeAttributes(secret, authSeed)
	if err != nil {
		return nil, err
	}

	length := 20 + len(attrBytes)
	if length > MaxPacketLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLong, length)
	}

	if maIndex >= 0 {
		hmacInput := make([]byte, 0, length)
		hmacInput = append(hmacInput, p.Code, p.Identifier, byte(length>>8), byte(length))
		hmacInput = append(hmacInput, authSeed[:]...)
		hmacInput = append(hmacInput, attrBytes...)
		mac := hmacMD5([]byte(secret), hmacInput)

		offset, found := findTopLevelAttribute(attrBytes, MessageAuthenticatorCode)
		if !found {
			return nil, fmt.Errorf("%w: Message-Authenticator attribute vanished during encoding", ErrMalformedPacket)
		}
		copy(attrBytes[offset+2:offset+2+16], mac)
		p.Attributes[maIndex].Value = append([]byte{}, mac...)
	}

	switch p.Code {
	case AccessRequest, StatusServer:
		// Authenticator already set above.
	default:
		p.Authenticator = computeAuthenticator(p.Code, p.Identifier, uint16(length), authSeed, attrBytes, secret)
	}

	buf := make([]byte, 20, length)
	buf[0] = p.Code
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	copy(buf[4:20], p.Authenticator[:])
	buf = append(buf, attrBytes...)
	return buf, nil
}

func (p *Packet) encodeAttributes(secret string, ra [16]byte) ([]byte, error) {
	var out []byte
	for _, a := range p.Attributes {
		b, err := encodeAttribute(a, secret, ra)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeAttribute(a Attribute, secret string, ra [16]byte) ([]byte, error) {
	d := a.Descriptor
	if d.Type == raddict.TypeVendorSpecific {
		subs, _ := a.AsSubAttributes()
		var inner []byte
		for _, sub := range subs {
			b, err := encodeAttribute(sub, secret, ra)
			if err != nil {
				return nil, err
			}
			inner = append(inner, b...)
		}
		value := make([]byte, 4, 4+len(inner))
		binary.BigEndian.PutUint32(value, uint32(d.VendorId))
		value = append(value, inner...)
		if len(value)+2 > 255 {
			return nil, fmt.Errorf("%w: Vendor-Specific attribute for vendor %d exceeds 255 bytes", ErrInvalidValue, d.VendorId)
		}
		out := make([]byte, 2, 2+len(value))
		out[0] = raddict.VendorSpecificCode
		out[1] = byte(2 + len(value))
		return append(out, value...), nil
	}

	raw, err := a.binaryValue()
	if err != nil {
		return nil, err
	}

	if d.Concat {
		var out []byte
		for _, chunk := range chunkBytes(raw, concatChunkSize) {
			b, err := encodeScalarAttribute(d, chunk, a.Tag, secret, ra)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}

	return encodeScalarAttribute(d, raw, a.Tag, secret, ra)
}

// DecodePacket parses wire bytes into a Packet, without un-hiding any
// encrypted attribute (they decode as their raw, still-hidden bytes).
// Useful for callers that need to inspect the header/authenticator before
// they know which shared secret applies. Most callers want
// DecodePacketWithSecret instead.
func DecodePacket(buf []byte, dict *raddict.Dictionary, requestAuthenticator [16]byte) (*Packet, error) {
	return DecodePacketWithSecret(buf, dict, "", requestAuthenticator)
}

// DecodePacketWithSecret parses wire bytes into a Packet, un-hiding any
// encrypted attribute using secret. requestAuthenticator is the Request
// Authenticator to use as the hiding seed when decoding a response packet
// (Access-Accept/Reject/Challenge, Accounting-Response); ignored for
// Access-Request/Status-Server (whose own header authenticator is the RA)
// and Accounting-Request (whose hiding seed is the zero RA).
func DecodePacketWithSecret(buf []byte, dict *raddict.Dictionary, secret string, requestAuthenticator [16]byte) (*Packet, error) {
	if dict == nil {
		dict = raddict.Default()
	}
	if len(buf) < 20 {
		return nil, fmt.Errorf("%w: header truncated (%d bytes)", ErrMalformedPacket, len(buf))
	}
	code := buf[0]
	identifier := buf[1]
	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if length < 20 || length > len(buf) || length > MaxPacketLength {
		return nil, fmt.Errorf("%w: invalid length %d (buffer %d bytes)", ErrMalformedPacket, length, len(buf))
	}
	var authenticator [16]byte
	copy(authenticator[:], buf[4:20])

	var hidingRA [16]byte
	switch code {
	case AccessRequest, StatusServer:
		hidingRA = authenticator
	case AccountingRequest:
		// zero seed
	default:
		hidingRA = requestAuthenticator
	}

	attrs, err := decodeAttributes(buf[20:length], dict, secret, hidingRA)
	if err != nil {
		return nil, err
	}
	return &Packet{Code: code, Identifier: identifier, Authenticator: authenticator, Attributes: attrs, dict: dict}, nil
}

type concatKey struct {
	vendorId int32
	code     byte
}

// decodeAttributes parses a sequence of top-level attributes at standard
// scope. decodeAttributesInScope does the same for top-level or (when
// vendorScope is not raddict.StandardVendorId) vendor sub-attributes,
// resolving each code against the given scope.
func decodeAttributes(buf []byte, dict *raddict.Dictionary, secret string, ra [16]byte) ([]Attribute, error) {
	return decodeAttributesInScope(buf, dict, raddict.StandardVendorId, secret, ra)
}

func decodeAttributesInScope(buf []byte, dict *raddict.Dictionary, vendorScope int32, secret string, ra [16]byte) ([]Attribute, error) {
	var out []Attribute
	concatIndex := make(map[concatKey]int)

	i := 0
	for i < len(buf) {
		if i+2 > len(buf) {
			return nil, fmt.Errorf("%w: truncated attribute header", ErrMalformedAttribute)
		}
		code := buf[i]
		length := int(buf[i+1])
		if length < 2 {
			return nil, fmt.Errorf("%w: attribute length %d < 2", ErrMalformedAttribute, length)
		}
		if i+length > len(buf) {
			return nil, fmt.Errorf("%w: attribute overruns packet", ErrMalformedAttribute)
		}
		wireValue := buf[i+2 : i+length]
		i += length

		if code == raddict.VendorSpecificCode && vendorScope == raddict.StandardVendorId {
			if len(wireValue) < 4 {
				return nil, fmt.Errorf("%w: Vendor-Specific attribute too short", ErrMalformedAttribute)
			}
			vendorId := int32(binary.BigEndian.Uint32(wireValue[:4]))
			subs, err := decodeAttributesInScope(wireValue[4:], dict, vendorId, secret, ra)
			if err != nil {
				return nil, err
			}
			d := &raddict.AttributeDescriptor{VendorId: vendorId, Code: raddict.VendorSpecificCode, Name: "Vendor-Specific", Type: raddict.TypeVendorSpecific}
			out = append(out, Attribute{Descriptor: d, Value: subs})
			continue
		}

		d := dict.GetByCode(vendorScope, code)
		tag, rawValue, err := decodeScalarFraming(d, wireValue, secret, ra)
		if err != nil {
			return nil, err
		}

		if d.Concat {
			dk := concatKey{d.VendorId, d.Code}
			if idx, seen := concatIndex[dk]; seen {
				buf, _ := out[idx].Value.([]byte)
				out[idx].Value = append(buf, rawValue...)
				continue
			}
			out = append(out, Attribute{Descriptor: d, Tag: tag, Value: append([]byte{}, rawValue...)})
			concatIndex[dk] = len(out) - 1
			continue
		}

		value, err := valueFromWire(d, rawValue)
		if err != nil {
			return nil, err
		}
		out = append(out, Attribute{Descriptor: d, Tag: tag, Value: value})
	}

	return out, nil
}

// ValidateRequestAuthenticator verifies the Request Authenticator of a
// non-Access-Request packet (typically Accounting-Request), given the raw
// wire bytes and the shared secret, per specification §4.1/§4.6.
func ValidateRequestAuthenticator(raw []byte, secret string) bool {
	if len(raw) < 20 {
		return false
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < 20 || length > len(raw) {
		return false
	}
	var received [16]byte
	copy(received[:], raw[4:20])
	expected := computeAuthenticator(raw[0], raw[1], uint16(length), [16]byte{}, raw[20:length], secret)
	return constantTimeEqual16(received, expected)
}

// ValidateResponseAuthenticator verifies a response packet's Response
// Authenticator against the original request's Request Authenticator and
// the shared secret, per specification §4.1.
func ValidateResponseAuthenticator(raw []byte, requestAuthenticator [16]byte, secret string) bool {
	if len(raw) < 20 {
		return false
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < 20 || length > len(raw) {
		return false
	}
	var received [16]byte
	copy(received[:], raw[4:20])
	expected := computeAuthenticator(raw[0], raw[1], uint16(length), requestAuthenticator, raw[20:length], secret)
	return constantTimeEqual16(received, expected)
}

// ValidateMessageAuthenticator verifies the Message-Authenticator attribute
// (RFC 3579 §3.2) of a raw wire packet. requestAuthenticator is the packet's
// own Authenticator field for requests (Access-Request), or the original
// request's Authenticator for a response packet — the same value used in
// the corresponding HMAC computation at encode time (specification §4.1).
func ValidateMessageAuthenticator(raw []byte, secret string, requestAuthenticator [16]byte) bool {
	if len(raw) < 20 {
		return false
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < 20 || length > len(raw) {
		return false
	}

	offset, found := findTopLevelAttribute(raw[20:length], MessageAuthenticatorCode)
	if !found {
		return false
	}
	// offset is relative to raw[20:length]; the value starts 2 bytes later.
	valueStart := 20 + offset + 2
	valueEnd := valueStart + 16
	if valueEnd > length {
		return false
	}

	var received [16]byte
	copy(received[:], raw[valueStart:valueEnd])

	scratch := make([]byte, length)
	copy(scratch, raw[:length])
	for i := valueStart; i < valueEnd; i++ {
		scratch[i] = 0
	}
	copy(scratch[4:20], requestAuthenticator[:])

	mac := hmacMD5([]byte(secret), scratch)
	var expected [16]byte
	copy(expected[:], mac)
	return constantTimeEqual16(received, expected)
}

// findTopLevelAttribute returns the byte offset (within buf, which must be
// the attributes-only region of a packet) of the first top-level attribute
// with the given code.
func findTopLevelAttribute(buf []byte, code byte) (int, bool) {
	i := 0
	for i+2 <= len(buf) {
		c := buf[i]
		length := int(buf[i+1])
		if length < 2 || i+length > len(buf) {
			return 0, false
		}
		if c == code {
			return i, true
		}
		i += length
	}
	return 0, false
}
