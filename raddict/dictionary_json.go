package raddict

import (
	"encoding/json"
	"fmt"
)

// jAttribute mirrors the on-disk JSON shape of a single attribute entry,
// following the reference library's jRadiusAVP layout in core/radiusdict.go.
type jAttribute struct {
	Code       byte             `json:"code"`
	Name       string           `json:"name"`
	Type       string           `json:"type"`
	EnumValues map[string]int64 `json:"enumValues,omitempty"`
	Encrypted  bool             `json:"encrypted,omitempty"`
	Tagged     bool             `json:"tagged,omitempty"`
	Salted     bool             `json:"salted,omitempty"`
	WithLen    bool             `json:"withLen,omitempty"`
	Concat     bool             `json:"concat,omitempty"`
}

// jVendorAttributes mirrors jRadiusVendorAVPs: one vendor's attribute set,
// with VendorId 0 reserved for standard (non vendor-specific) attributes.
type jVendorAttributes struct {
	VendorId   int32        `json:"vendorId"`
	Attributes []jAttribute `json:"attributes"`
}

// jVendor mirrors the {vendorId, vendorName} pairs list.
type jVendor struct {
	VendorId   int32  `json:"vendorId"`
	VendorName string `json:"vendorName"`
}

// jDict mirrors jRadiusDict: the full on-disk dictionary document.
type jDict struct {
	Version int                 `json:"version"`
	Vendors []jVendor           `json:"vendors"`
	Avps    []jVendorAttributes `json:"avps"`
}

func dataTypeFromString(s string) (DataType, error) {
	switch s {
	case "String":
		return TypeString, nil
	case "Octets":
		return TypeOctets, nil
	case "Integer":
		return TypeInteger, nil
	case "Date":
		return TypeDate, nil
	case "IPv4", "Address":
		return TypeIPv4, nil
	case "IPv6", "IPv6Address":
		return TypeIPv6, nil
	case "IPv6Prefix":
		return TypeIPv6Prefix, nil
	case "Integer64":
		return TypeInteger64, nil
	case "InterfaceId":
		return TypeInterfaceId, nil
	default:
		return 0, fmt.Errorf("raddict: unknown attribute type %q", s)
	}
}

// NewDictionaryFromJSON parses a dictionary document in the shape described
// above and seals it into an immutable Dictionary. Standard (non-vendor)
// attributes are declared under a jVendorAttributes entry with VendorId 0.
func NewDictionaryFromJSON(data []byte) (*Dictionary, error) {
	var doc jDict
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("raddict: bad dictionary JSON: %w", err)
	}

	b := newBuilder()

	for _, v := range doc.Vendors {
		b.addVendor(v.VendorId, v.VendorName)
	}

	for _, group := range doc.Avps {
		vendorId := int32(StandardVendorId)
		if group.VendorId != 0 {
			vendorId = int32(group.VendorId)
		}
		for _, a := range group.Attributes {
			dataType, err := dataTypeFromString(a.Type)
			if err != nil {
				return nil, err
			}
			descriptor := &AttributeDescriptor{
				VendorId:  int32(vendorId),
				Code:      a.Code,
				Name:      a.Name,
				Type:      dataType,
				Encrypted: a.Encrypted,
				Tagged:    a.Tagged,
				Salted:    a.Salted,
				WithLen:   a.WithLen,
				Concat:    a.Concat,
			}
			if len(a.EnumValues) > 0 {
				descriptor.EnumValues = make(map[int64]string, len(a.EnumValues))
				descriptor.enumByName = make(map[string]int64, len(a.EnumValues))
				for name, code := range a.EnumValues {
					descriptor.EnumValues[code] = name
					descriptor.enumByName[name] = code
				}
			}
			if err := b.addAttribute(descriptor); err != nil {
				return nil, err
			}
		}
	}

	return b.seal(), nil
}
