package radcodec

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/npax/radius/raddict"
)

// Authenticate validates password against this packet's authentication
// attributes. It checks User-Password (PAP, exact match of the already
// un-hidden value) when present, otherwise CHAP-Password/CHAP-Challenge
// (MD5 over chap-id ‖ password ‖ challenge, falling back to the packet's
// own Authenticator as the challenge when no CHAP-Challenge attribute is
// present, per RFC 2865 §2.2). Returns an error if neither attribute is
// present.
func (p *Packet) Authenticate(password string) (bool, error) {
	if pw, ok := p.Get("User-Password"); ok {
		got, _ := pw.AsOctets()
		return string(got) == password, nil
	}

	chap, ok := p.Get("CHAP-Password")
	if !ok {
		return false, fmt.Errorf("%w: packet has neither User-Password nor CHAP-Password", ErrInvalidValue)
	}
	raw, _ := chap.AsOctets()
	if len(raw) != 17 {
		return false, fmt.Errorf("%w: CHAP-Password must be 17 bytes, got %d", ErrMalformedAttribute, len(raw))
	}
	chapID := raw[0]
	chapResponse := raw[1:]

	challenge := p.Authenticator[:]
	if c, ok := p.Get("CHAP-Challenge"); ok {
		challenge, _ = c.AsOctets()
	}

	h := md5.New()
	h.Write([]byte{chapID})
	h.Write([]byte(password))
	h.Write(challenge)
	return string(h.Sum(nil)) == string(chapResponse), nil
}

// GetVSAPair extracts a "name=value" or "name*value" pair (the Cisco
// AVPair convention) out of a named string-valued Vendor-Specific
// attribute, returning the parsed name, value and whether one was found.
func (p *Packet) GetVSAPair(vendorName, attrName string) (name string, value string, found bool) {
	vendorId, ok := p.dict.VendorId(vendorName)
	if !ok {
		return "", "", false
	}
	for _, a := range p.Attributes {
		if a.Code() != 26 || a.VendorId() != vendorId {
			continue
		}
		subs, _ := a.AsSubAttributes()
		for _, sub := range subs {
			if sub.Name() != attrName {
				continue
			}
			s := sub.AsString()
			if idx := strings.IndexAny(s, "=*"); idx >= 0 {
				return s[:idx], s[idx+1:], true
			}
			return s, "", true
		}
	}
	return "", "", false
}

// jsonAttribute is the JSON representation of one decoded attribute, using
// its dictionary name rather than its wire (vendor, code) pair.
type jsonAttribute struct {
	Name  string      `json:"name"`
	Tag   byte        `json:"tag,omitempty"`
	Value interface{} `json:"value"`
}

// MarshalJSON renders the packet as its code, identifier and attributes in
// dictionary-name/value form, for logging and CDR-style output.
func (p *Packet) MarshalJSON() ([]byte, error) {
	out := struct {
		Code       byte            `json:"code"`
		Identifier byte            `json:"identifier"`
		Attributes []jsonAttribute `json:"attributes"`
	}{Code: p.Code, Identifier: p.Identifier}

	for _, a := range p.Attributes {
		out.Attributes = append(out.Attributes, attributeToJSON(a))
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a packet from the form produced by MarshalJSON.
// The packet's dictionary must already be set (via NewPacket or a prior
// decode) since this is usually called on a *Packet obtained that way; a
// zero-value Packet falls back to raddict.Default().
func (p *Packet) UnmarshalJSON(data []byte) error {
	var in struct {
		Code       byte            `json:"code"`
		Identifier byte            `json:"identifier"`
		Attributes []jsonAttribute `json:"attributes"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if p.dict == nil {
		p.dict = raddict.Default()
	}
	p.Code = in.Code
	p.Identifier = in.Identifier
	p.Attributes = nil
	for _, ja := range in.Attributes {
		a, err := attributeFromJSON(p.dict, ja)
		if err != nil {
			return err
		}
		p.Attributes = append(p.Attributes, a)
	}
	return nil
}

// attributeFromJSON rebuilds one attribute from its MarshalJSON form. Nested
// arrays (Vendor-Specific sub-attributes) are recognized structurally;
// Octets values, hex-encoded by AsString, are hex-decoded back to bytes;
// everything else round-trips through its string form via NewAttribute.
func attributeFromJSON(dict *raddict.Dictionary, ja jsonAttribute) (Attribute, error) {
	d := dict.GetByName(ja.Name)
	if d == nil {
		return Attribute{}, fmt.Errorf("%w: unknown attribute %q", ErrInvalidValue, ja.Name)
	}

	if d.Type == raddict.TypeVendorSpecific {
		rawSubs, ok := ja.Value.([]interface{})
		if !ok {
			return Attribute{}, fmt.Errorf("%w: %s: expected nested attribute array", ErrInvalidValue, ja.Name)
		}
		var subs []Attribute
		for _, rs := range rawSubs {
			encoded, err := json.Marshal(rs)
			if err != nil {
				return Attribute{}, err
			}
			var subJA jsonAttribute
			if err := json.Unmarshal(encoded, &subJA); err != nil {
				return Attribute{}, err
			}
			sub, err := attributeFromJSON(dict, subJA)
			if err != nil {
				return Attribute{}, err
			}
			subs = append(subs, sub)
		}
		return Attribute{Descriptor: d, Value: subs}, nil
	}

	var value interface{} = ja.Value
	if d.Type == raddict.TypeOctets {
		s, _ := ja.Value.(string)
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return Attribute{}, fmt.Errorf("%w: %s: invalid hex value %q", ErrInvalidValue, ja.Name, s)
		}
		value = decoded
	}
	a, err := NewAttribute(d, value)
	if err != nil {
		return Attribute{}, err
	}
	a.Tag = ja.Tag
	return a, nil
}

func attributeToJSON(a Attribute) jsonAttribute {
	if subs, ok := a.AsSubAttributes(); ok {
		nested := make([]jsonAttribute, 0, len(subs))
		for _, sub := range subs {
			nested = append(nested, attributeToJSON(sub))
		}
		return jsonAttribute{Name: a.Name(), Value: nested}
	}
	return jsonAttribute{Name: a.Name(), Tag: a.Tag, Value: a.AsString()}
}
