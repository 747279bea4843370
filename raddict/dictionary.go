// Package raddict implements the RADIUS attribute dictionary: the registry
// that maps (vendor-id, type-code) and name to an attribute descriptor
// carrying its data type, enumeration values and encoding flavor flags.
package raddict

import "fmt"

// DataType is the closed set of wire representations a RADIUS attribute
// value may take.
type DataType int

const (
	TypeString DataType = iota
	TypeOctets
	TypeInteger
	TypeDate
	TypeIPv4
	TypeIPv6
	TypeIPv6Prefix
	TypeInteger64
	TypeInterfaceId
	TypeVendorSpecific
)

func (t DataType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeOctets:
		return "Octets"
	case TypeInteger:
		return "Integer"
	case TypeDate:
		return "Date"
	case TypeIPv4:
		return "IPv4"
	case TypeIPv6:
		return "IPv6"
	case TypeIPv6Prefix:
		return "IPv6Prefix"
	case TypeInteger64:
		return "Integer64"
	case TypeInterfaceId:
		return "InterfaceId"
	case TypeVendorSpecific:
		return "VendorSpecific"
	default:
		return "Unknown"
	}
}

// VendorSpecificCode is the standard attribute type code (26) reserved for
// Vendor-Specific Attributes per RFC 2865 §5.26.
const VendorSpecificCode = 26

// StandardVendorId is used for descriptors that are not vendor-specific.
const StandardVendorId = -1

// AttributeDescriptor is a dictionary entry: the full description of one
// attribute, standard or vendor-specific.
type AttributeDescriptor struct {
	VendorId int32
	Code     byte
	Name     string
	Type     DataType

	// EnumValues maps an integer value to its symbolic name, populated
	// only for TypeInteger/TypeInteger64 attributes that declare one.
	EnumValues map[int64]string
	// enumByName is the reverse index, built once at registration time.
	enumByName map[string]int64

	// Encoding flavor flags, dictionary-driven per §2.3 of the specification.
	Encrypted bool
	Tagged    bool
	Salted    bool
	WithLen   bool
	Concat    bool
}

// UnknownDescriptor is the synthetic descriptor used when decoding an
// attribute whose (vendor, code) is not present in the dictionary, so that
// round-trip decode->encode is preserved for unrecognized attributes.
var UnknownDescriptor = AttributeDescriptor{
	VendorId: StandardVendorId,
	Name:     "UNKNOWN",
	Type:     TypeOctets,
}

// EnumCode returns the integer value for a symbolic enumeration name.
func (d *AttributeDescriptor) EnumCode(name string) (int64, bool) {
	v, ok := d.enumByName[name]
	return v, ok
}

// key identifies a descriptor uniquely by (vendor, code).
type key struct {
	vendorId int32
	code     byte
}

// Dictionary is an immutable, concurrency-safe registry of attribute
// descriptors. Once built (NewDictionary/NewDictionaryFromJSON), it is never
// mutated again, so reads require no synchronization — matching the
// reference library's "built once at startup" dictionary discipline.
type Dictionary struct {
	vendorNames map[int32]string
	vendorIds   map[string]int32

	byCode map[key]*AttributeDescriptor
	byName map[string]*AttributeDescriptor
}

// GetByCode looks up a descriptor by vendor id (-1 for standard) and type
// code. It never fails: an unrecognized pair returns UnknownDescriptor with
// its Code/VendorId filled in, so callers always have something to encode a
// round-trippable attribute with.
func (d *Dictionary) GetByCode(vendorId int32, code byte) *AttributeDescriptor {
	if item, ok := d.byCode[key{vendorId, code}]; ok {
		return item
	}
	unk := UnknownDescriptor
	unk.VendorId = vendorId
	unk.Code = code
	return &unk
}

// GetByName looks up a descriptor by its unique name. Returns nil if no such
// attribute is registered.
func (d *Dictionary) GetByName(name string) *AttributeDescriptor {
	return d.byName[name]
}

// VendorName returns the configured name for a vendor id, or the numeric id
// formatted as a string if there is no such vendor.
func (d *Dictionary) VendorName(vendorId int32) string {
	if name, ok := d.vendorNames[vendorId]; ok {
		return name
	}
	return fmt.Sprintf("%d", vendorId)
}

// VendorId returns the configured vendor id for a vendor name.
func (d *Dictionary) VendorId(name string) (int32, bool) {
	id, ok := d.vendorIds[name]
	return id, ok
}

// builder accumulates descriptors before sealing them into a Dictionary.
type builder struct {
	vendorNames map[int32]string
	vendorIds   map[string]int32
	byCode      map[key]*AttributeDescriptor
	byName      map[string]*AttributeDescriptor
}

func newBuilder() *builder {
	return &builder{
		vendorNames: make(map[int32]string),
		vendorIds:   make(map[string]int32),
		byCode:      make(map[key]*AttributeDescriptor),
		byName:      make(map[string]*AttributeDescriptor),
	}
}

func (b *builder) addVendor(id int32, name string) {
	b.vendorNames[id] = name
	b.vendorIds[name] = id
}

func (b *builder) addAttribute(d *AttributeDescriptor) error {
	if d.Code == VendorSpecificCode && d.VendorId == StandardVendorId {
		return fmt.Errorf("raddict: attribute %q cannot use reserved code 26 (Vendor-Specific) at standard scope", d.Name)
	}
	if d.Concat && d.Type != TypeOctets {
		return fmt.Errorf("raddict: %s is marked concat but not of type Octets", d.Name)
	}
	if d.Name == "" {
		return fmt.Errorf("raddict: attribute name must not be empty (vendor %d code %d)", d.VendorId, d.Code)
	}
	k := key{d.VendorId, d.Code}
	b.byCode[k] = d
	b.byName[d.Name] = d
	return nil
}

func (b *builder) seal() *Dictionary {
	return &Dictionary{
		vendorNames: b.vendorNames,
		vendorIds:   b.vendorIds,
		byCode:      b.byCode,
		byName:      b.byName,
	}
}
