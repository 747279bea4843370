package radcodec

import (
	"net"
	"testing"
	"time"

	"github.com/npax/radius/raddict"
)

var testSecret = "mysecret"
var testRA = [16]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}

func mustAttr(t *testing.T, name string, value interface{}) Attribute {
	t.Helper()
	d := raddict.Default().GetByName(name)
	if d == nil {
		t.Fatalf("attribute %q not found in default dictionary", name)
	}
	a, err := NewAttribute(d, value)
	if err != nil {
		t.Fatalf("NewAttribute(%q): %v", name, err)
	}
	return a
}

func TestStringAttributeRoundTrip(t *testing.T) {
	a := mustAttr(t, "User-Name", "MyUserName")
	if a.AsString() != "MyUserName" {
		t.Errorf("got %q", a.AsString())
	}
}

func TestIntegerAttributeEnumName(t *testing.T) {
	a := mustAttr(t, "Service-Type", "Framed-User")
	n, ok := a.AsInt()
	if !ok || n != 2 {
		t.Fatalf("expected Framed-User to resolve to 2, got %d ok=%v", n, ok)
	}
	if a.AsString() != "Framed-User" {
		t.Errorf("AsString should resolve the enum name back, got %q", a.AsString())
	}
}

func TestIPv4Attribute(t *testing.T) {
	a := mustAttr(t, "NAS-IP-Address", "127.0.0.1")
	raw, err := a.binaryValue()
	if err != nil {
		t.Fatalf("binaryValue: %v", err)
	}
	if len(raw) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(raw))
	}
	value, err := valueFromWire(a.Descriptor, raw)
	if err != nil {
		t.Fatalf("valueFromWire: %v", err)
	}
	if !value.(net.IP).Equal(net.ParseIP("127.0.0.1")) {
		t.Errorf("got %v", value)
	}
}

func TestIPv6PrefixRoundTrip(t *testing.T) {
	a := mustAttr(t, "Framed-IPv6-Prefix", "bebe:cafe:cccc::/64")
	raw, err := a.binaryValue()
	if err != nil {
		t.Fatalf("binaryValue: %v", err)
	}
	s, err := decodeIPv6Prefix(raw)
	if err != nil {
		t.Fatalf("decodeIPv6Prefix: %v", err)
	}
	if s != "bebe:cafe:cccc::/64" {
		t.Errorf("got %q", s)
	}
}

func TestDateAttributeRoundTrip(t *testing.T) {
	when := time.Date(1966, time.November, 26, 3, 34, 8, 0, time.UTC)
	a := mustAttr(t, "Event-Timestamp", when)
	raw, err := a.binaryValue()
	if err != nil {
		t.Fatalf("binaryValue: %v", err)
	}
	value, err := valueFromWire(a.Descriptor, raw)
	if err != nil {
		t.Fatalf("valueFromWire: %v", err)
	}
	got := value.(time.Time)
	if got.Unix() != when.Unix() {
		t.Errorf("got %v want %v", got, when)
	}
}

func TestInteger64Attribute(t *testing.T) {
	d := raddict.Default().GetByName("Example-Integer64")
	if d == nil {
		t.Fatalf("Example-Integer64 not found")
	}
	a, err := NewAttribute(d, int64(999999999999))
	if err != nil {
		t.Fatalf("NewAttribute: %v", err)
	}
	raw, err := a.binaryValue()
	if err != nil {
		t.Fatalf("binaryValue: %v", err)
	}
	if len(raw) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(raw))
	}
	value, err := valueFromWire(d, raw)
	if err != nil {
		t.Fatalf("valueFromWire: %v", err)
	}
	if value.(int64) != 999999999999 {
		t.Errorf("got %d", value)
	}
}
