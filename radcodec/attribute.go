package radcodec

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/npax/radius/raddict"
)

// Attribute is one wire attribute, either a standard/vendor scalar value or
// a Vendor-Specific container of nested sub-attributes. Value holds the
// decoded Go representation per the descriptor's DataType:
//
//	String, IPv6Prefix text  -> string
//	Octets, raw VSA payload  -> []byte
//	Integer, Integer64       -> int64
//	Date                     -> time.Time
//	IPv4, IPv6               -> net.IP
//	VendorSpecific           -> []Attribute (sub-attributes)
type Attribute struct {
	Descriptor *raddict.AttributeDescriptor
	Tag        byte
	Value      interface{}
}

// VendorId is a convenience accessor for Descriptor.VendorId.
func (a Attribute) VendorId() int32 { return a.Descriptor.VendorId }

// Code is a convenience accessor for Descriptor.Code.
func (a Attribute) Code() byte { return a.Descriptor.Code }

// Name is a convenience accessor for Descriptor.Name.
func (a Attribute) Name() string { return a.Descriptor.Name }

// NewAttribute builds an outgoing attribute from a typed Go value, validating
// it against the descriptor's DataType. Octets descriptors reject any value
// other than []byte; the standard Vendor-Specific descriptor (code 26)
// rejects every value, and Vendor-Specific attributes are built with
// NewVendorSpecificAttribute instead.
func NewAttribute(d *raddict.AttributeDescriptor, value interface{}) (Attribute, error) {
	if d.Code == raddict.VendorSpecificCode && d.VendorId == raddict.StandardVendorId {
		return Attribute{}, fmt.Errorf("%w: %s is Vendor-Specific, build it via NewVendorSpecificAttribute", ErrInvalidValue, d.Name)
	}

	switch d.Type {
	case raddict.TypeString:
		s, ok := value.(string)
		if !ok {
			return Attribute{}, fmt.Errorf("%w: %s requires a string value", ErrInvalidValue, d.Name)
		}
		return Attribute{Descriptor: d, Value: s}, nil

	case raddict.TypeOctets:
		b, ok := value.([]byte)
		if !ok {
			return Attribute{}, fmt.Errorf("%w: %s requires a []byte value", ErrInvalidValue, d.Name)
		}
		return Attribute{Descriptor: d, Value: append([]byte{}, b...)}, nil

	case raddict.TypeInteger, raddict.TypeInteger64:
		n, err := toInt64(value)
		if err != nil {
			// Accept an enumeration name, per §4.2's "from string" constructor.
			if s, ok := value.(string); ok {
				if code, found := d.EnumCode(s); found {
					return Attribute{Descriptor: d, Value: code}, nil
				}
			}
			return Attribute{}, fmt.Errorf("%w: %s requires an integer or enum name value", ErrInvalidValue, d.Name)
		}
		return Attribute{Descriptor: d, Value: n}, nil

	case raddict.TypeDate:
		switch v := value.(type) {
		case time.Time:
			return Attribute{Descriptor: d, Value: v}, nil
		default:
			n, err := toInt64(value)
			if err != nil {
				return Attribute{}, fmt.Errorf("%w: %s requires a time.Time or integer value", ErrInvalidValue, d.Name)
			}
			return Attribute{Descriptor: d, Value: time.Unix(n, 0).UTC()}, nil
		}

	case raddict.TypeIPv4:
		ip, err := parseIP(value, net.IPv4len)
		if err != nil {
			return Attribute{}, fmt.Errorf("%w: %s: %s", ErrInvalidValue, d.Name, err)
		}
		return Attribute{Descriptor: d, Value: ip}, nil

	case raddict.TypeIPv6, raddict.TypeInterfaceId:
		ip, err := parseIP(value, net.IPv6len)
		if err != nil {
			return Attribute{}, fmt.Errorf("%w: %s: %s", ErrInvalidValue, d.Name, err)
		}
		return Attribute{Descriptor: d, Value: ip}, nil

	case raddict.TypeIPv6Prefix:
		s, ok := value.(string)
		if !ok {
			return Attribute{}, fmt.Errorf("%w: %s requires a CIDR string value", ErrInvalidValue, d.Name)
		}
		return Attribute{Descriptor: d, Value: s}, nil

	default:
		return Attribute{}, fmt.Errorf("%w: unsupported data type for %s", ErrInvalidValue, d.Name)
	}
}

// NewVendorSpecificAttribute builds an outer Vendor-Specific attribute
// (type code 26) wrapping the given sub-attributes for a registered vendor.
func NewVendorSpecificAttribute(dict *raddict.Dictionary, vendorName string, subAttributes []Attribute) (Attribute, error) {
	vendorId, ok := dict.VendorId(vendorName)
	if !ok {
		return Attribute{}, fmt.Errorf("%w: unknown vendor %q", ErrInvalidValue, vendorName)
	}
	d := &raddict.AttributeDescriptor{
		VendorId: vendorId,
		Code:     raddict.VendorSpecificCode,
		Name:     "Vendor-Specific",
		Type:     raddict.TypeVendorSpecific,
	}
	return Attribute{Descriptor: d, Value: subAttributes}, nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		// encoding/json decodes numbers into interface{} as float64.
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func parseIP(value interface{}, wantLen int) (net.IP, error) {
	switch v := value.(type) {
	case net.IP:
		return v, nil
	case string:
		ip := net.ParseIP(v)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", v)
		}
		if wantLen == net.IPv4len {
			if ip4 := ip.To4(); ip4 != nil {
				return ip4, nil
			}
			return nil, fmt.Errorf("%q is not an IPv4 address", v)
		}
		return ip, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to IP address", value)
	}
}

// AsString returns the attribute's human-readable text form, resolving
// integer enumeration names when the dictionary declares one.
func (a Attribute) AsString() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case int64:
		if name, ok := a.Descriptor.EnumValues[v]; ok {
			return name
		}
		return strconv.FormatInt(v, 10)
	case time.Time:
		return strconv.FormatInt(v.Unix(), 10)
	case net.IP:
		return v.String()
	case []Attribute:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsInt returns the attribute's integer value, or 0, false if it is not an
// integer-family attribute.
func (a Attribute) AsInt() (int64, bool) {
	v, ok := a.Value.(int64)
	return v, ok
}

// AsOctets returns the attribute's raw byte value, or nil, false if it is
// not an octets-family attribute.
func (a Attribute) AsOctets() ([]byte, bool) {
	v, ok := a.Value.([]byte)
	return v, ok
}

// AsSubAttributes returns the nested sub-attributes of a Vendor-Specific
// attribute, or nil, false otherwise.
func (a Attribute) AsSubAttributes() ([]Attribute, bool) {
	v, ok := a.Value.([]Attribute)
	return v, ok
}

// binaryValue returns the raw bytes this attribute's Value encodes to,
// ignoring tag/salt/concat/withLen framing handled by the packet-level
// encoder, and before any password hiding is applied (encryption is applied
// to this result by the packet codec, which has access to the secret and
// request authenticator).
func (a Attribute) binaryValue() ([]byte, error) {
	switch d := a.Descriptor; d.Type {
	case raddict.TypeString:
		s, _ := a.Value.(string)
		return []byte(s), nil
	case raddict.TypeOctets:
		b, _ := a.Value.([]byte)
		return b, nil
	case raddict.TypeInteger:
		n, _ := a.Value.(int64)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n))
		return buf, nil
	case raddict.TypeInteger64:
		n, _ := a.Value.(int64)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case raddict.TypeDate:
		t, _ := a.Value.(time.Time)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(t.Unix()))
		return buf, nil
	case raddict.TypeIPv4:
		ip, _ := a.Value.(net.IP)
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%w: %s: not an IPv4 address", ErrInvalidValue, d.Name)
		}
		return []byte(ip4), nil
	case raddict.TypeIPv6, raddict.TypeInterfaceId:
		ip, _ := a.Value.(net.IP)
		return []byte(ip.To16()), nil
	case raddict.TypeIPv6Prefix:
		s, _ := a.Value.(string)
		return encodeIPv6Prefix(s)
	default:
		return nil, fmt.Errorf("%w: %s: cannot serialize data type %s directly", ErrInvalidValue, d.Name, d.Type)
	}
}

func encodeIPv6Prefix(cidr string) ([]byte, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv6 prefix %q: %w", cidr, err)
	}
	ones, _ := ipNet.Mask.Size()
	out := make([]byte, 2+len(ipNet.IP))
	out[0] = 0
	out[1] = byte(ones)
	copy(out[2:], ipNet.IP)
	return out, nil
}

func decodeIPv6Prefix(b []byte) (string, error) {
	if len(b) < 2 || len(b) > 18 {
		return "", fmt.Errorf("%w: IPv6Prefix length %d out of range", ErrMalformedAttribute, len(b))
	}
	prefixLen := int(b[1])
	addr := make(net.IP, 16)
	copy(addr, b[2:])
	return fmt.Sprintf("%s/%d", addr.String(), prefixLen), nil
}

// valueFromWire builds an Attribute's Value from a decoded, already-unhidden
// value buffer (tag/salt/concat framing already stripped by the caller).
func valueFromWire(d *raddict.AttributeDescriptor, raw []byte) (interface{}, error) {
	switch d.Type {
	case raddict.TypeString:
		return string(raw), nil
	case raddict.TypeOctets:
		return append([]byte{}, raw...), nil
	case raddict.TypeInteger:
		if len(raw) != 4 {
			return nil, fmt.Errorf("%w: %s: Integer requires 4 bytes, got %d", ErrMalformedAttribute, d.Name, len(raw))
		}
		return int64(binary.BigEndian.Uint32(raw)), nil
	case raddict.TypeInteger64:
		if len(raw) != 8 {
			return nil, fmt.Errorf("%w: %s: Integer64 requires 8 bytes, got %d", ErrMalformedAttribute, d.Name, len(raw))
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case raddict.TypeDate:
		if len(raw) != 4 {
			return nil, fmt.Errorf("%w: %s: Date requires 4 bytes, got %d", ErrMalformedAttribute, d.Name, len(raw))
		}
		return time.Unix(int64(binary.BigEndian.Uint32(raw)), 0).UTC(), nil
	case raddict.TypeIPv4:
		if len(raw) != net.IPv4len {
			return nil, fmt.Errorf("%w: %s: IPv4 requires 4 bytes, got %d", ErrMalformedAttribute, d.Name, len(raw))
		}
		return net.IP(append([]byte{}, raw...)), nil
	case raddict.TypeIPv6, raddict.TypeInterfaceId:
		if len(raw) != net.IPv6len {
			return nil, fmt.Errorf("%w: %s: IPv6 requires 16 bytes, got %d", ErrMalformedAttribute, d.Name, len(raw))
		}
		return net.IP(append([]byte{}, raw...)), nil
	case raddict.TypeIPv6Prefix:
		s, err := decodeIPv6Prefix(raw)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return append([]byte{}, raw...), nil
	}
}
