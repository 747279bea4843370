package radcodec

import (
	"crypto/md5"
	"strings"
	"testing"
)

func TestAccessRequestRoundTrip(t *testing.T) {
	theUserName := "MyUserName"
	thePassword := "pwd"

	req := NewPacket(AccessRequest, nil)
	if err := req.Add("User-Name", theUserName); err != nil {
		t.Fatalf("Add User-Name: %v", err)
	}
	if err := req.Add("User-Password", []byte(thePassword)); err != nil {
		t.Fatalf("Add User-Password: %v", err)
	}

	wire, err := req.Encode(testSecret, 1, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}

	if un, ok := decoded.Get("User-Name"); !ok || un.AsString() != theUserName {
		t.Errorf("User-Name round trip failed: %+v", un)
	}
	pw, ok := decoded.Get("User-Password")
	if !ok {
		t.Fatalf("User-Password missing after decode")
	}
	raw, _ := pw.AsOctets()
	if string(raw) != thePassword {
		t.Errorf("password round trip failed: got %q", raw)
	}

	response := NewResponse(decoded, AccessAccept)
	responseBytes, err := response.Encode(testSecret, decoded.Identifier, decoded.Authenticator, false)
	if err != nil {
		t.Fatalf("Encode response: %v", err)
	}
	if !ValidateResponseAuthenticator(responseBytes, decoded.Authenticator, testSecret) {
		t.Errorf("response authenticator did not validate")
	}
}

func TestAccountingRequestRoundTrip(t *testing.T) {
	theClass := []byte("MyClass")

	req := NewPacket(AccountingRequest, nil)
	if err := req.Add("Class", theClass); err != nil {
		t.Fatalf("Add Class: %v", err)
	}

	wire, err := req.Encode(testSecret, 5, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if !ValidateRequestAuthenticator(wire, testSecret) {
		t.Fatalf("request authenticator did not validate")
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}
	class, ok := decoded.Get("Class")
	if !ok {
		t.Fatalf("Class missing")
	}
	raw, _ := class.AsOctets()
	if string(raw) != string(theClass) {
		t.Errorf("got %q want %q", raw, theClass)
	}

	response := NewResponse(decoded, AccountingResponse)
	responseBytes, err := response.Encode(testSecret, decoded.Identifier, decoded.Authenticator, false)
	if err != nil {
		t.Fatalf("Encode response: %v", err)
	}
	if !ValidateResponseAuthenticator(responseBytes, decoded.Authenticator, testSecret) {
		t.Errorf("response authenticator did not validate")
	}
}

func TestMessageAuthenticatorRoundTrip(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	if err := req.Add("User-Name", "someone"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := req.Add("Message-Authenticator", make([]byte, 16)); err != nil {
		t.Fatalf("Add Message-Authenticator: %v", err)
	}

	wire, err := req.Encode(testSecret, 9, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}

	if !ValidateMessageAuthenticator(wire, testSecret, decoded.Authenticator) {
		t.Errorf("Message-Authenticator did not validate")
	}

	// Tampering with any byte must invalidate it.
	tampered := append([]byte{}, wire...)
	tampered[len(tampered)-1] ^= 0xff
	if ValidateMessageAuthenticator(tampered, testSecret, decoded.Authenticator) {
		t.Errorf("tampered packet unexpectedly validated")
	}
}

func TestMessageAuthenticatorWithSaltedAttributeInSamePacket(t *testing.T) {
	// Regression test: a Salted attribute alongside Message-Authenticator
	// must not desynchronize the HMAC from the final wire bytes (the salt
	// must not be regenerated between computing the HMAC and producing the
	// final encoding).
	req := NewPacket(AccessRequest, nil)
	if err := req.Add("Tunnel-Password", []byte("tunnel-secret")); err != nil {
		t.Fatalf("Add Tunnel-Password: %v", err)
	}
	if err := req.Add("Message-Authenticator", make([]byte, 16)); err != nil {
		t.Fatalf("Add Message-Authenticator: %v", err)
	}

	wire, err := req.Encode(testSecret, 3, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}
	if !ValidateMessageAuthenticator(wire, testSecret, decoded.Authenticator) {
		t.Errorf("Message-Authenticator did not validate alongside a Salted attribute")
	}
	tp, ok := decoded.Get("Tunnel-Password")
	if !ok {
		t.Fatalf("Tunnel-Password missing after decode")
	}
	raw, _ := tp.AsOctets()
	if string(raw) != "tunnel-secret" {
		t.Errorf("Tunnel-Password round trip failed: got %q", raw)
	}
}

func TestVendorSpecificAttributeRoundTrip(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	vsa, err := NewVendorSpecificAttribute(req.Dictionary(), "Cisco", []Attribute{
		mustAttr(t, "Cisco-AVPair", "subscriber:sa=internet(shape-rate=1000)"),
	})
	if err != nil {
		t.Fatalf("NewVendorSpecificAttribute: %v", err)
	}
	req.Attributes = append(req.Attributes, vsa)

	wire, err := req.Encode(testSecret, 2, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}

	name, value, found := decoded.GetVSAPair("Cisco", "Cisco-AVPair")
	if !found {
		t.Fatalf("Cisco-AVPair not found after decode")
	}
	if name != "subscriber:sa" || value != "internet(shape-rate=1000)" {
		t.Errorf("got name=%q value=%q", name, value)
	}
}

func TestConcatAttributeRoundTrip(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	}
	long := sb.String()

	req := NewPacket(AccessRequest, nil)
	if err := req.Add("EAP-Message", []byte(long)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := req.Add("User-Name", "theUserName"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	wire, err := req.Encode(testSecret, 4, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}
	eap, ok := decoded.Get("EAP-Message")
	if !ok {
		t.Fatalf("EAP-Message missing after decode")
	}
	raw, _ := eap.AsOctets()
	if string(raw) != long {
		t.Errorf("long attribute round trip failed (got %d bytes, want %d)", len(raw), len(long))
	}
}

func TestTaggedIntegerAttributeRoundTrip(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	if err := req.AddTagged("Tunnel-Type", int64(3), 2); err != nil {
		t.Fatalf("AddTagged: %v", err)
	}
	wire, err := req.Encode(testSecret, 6, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodePacketWithSecret(wire, nil, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}
	tt, ok := decoded.Get("Tunnel-Type")
	if !ok {
		t.Fatalf("Tunnel-Type missing after decode")
	}
	if tt.Tag != 2 {
		t.Errorf("expected tag 2, got %d", tt.Tag)
	}
	n, _ := tt.AsInt()
	if n != 3 {
		t.Errorf("expected value 3, got %d", n)
	}
}

func TestCopyWithFilters(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	req.Add("User-Name", "someone")
	req.Add("NAS-Port", int64(1))

	positive := req.Copy([]string{"User-Name"}, nil)
	if len(positive.Attributes) != 1 || positive.Attributes[0].Name() != "User-Name" {
		t.Errorf("positive filter failed: %+v", positive.Attributes)
	}

	negative := req.Copy(nil, []string{"User-Name"})
	if len(negative.Attributes) != 1 || negative.Attributes[0].Name() != "NAS-Port" {
		t.Errorf("negative filter failed: %+v", negative.Attributes)
	}
}

func TestPacketJSONRoundTrip(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	req.Add("User-Name", "someone")
	req.Add("NAS-Port", int64(7))

	data, err := req.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var out Packet
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if out.Code != AccessRequest {
		t.Errorf("got code %d", out.Code)
	}
	un, ok := out.Get("User-Name")
	if !ok || un.AsString() != "someone" {
		t.Errorf("User-Name round trip failed: %+v", un)
	}
	np, ok := out.Get("NAS-Port")
	if !ok {
		t.Fatalf("NAS-Port missing")
	}
	n, _ := np.AsInt()
	if n != 7 {
		t.Errorf("got %d want 7", n)
	}
}

func TestAuthenticatePAP(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	req.Add("User-Password", []byte("correct horse"))
	ok, err := req.Authenticate("correct horse")
	if err != nil || !ok {
		t.Errorf("expected PAP authentication to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = req.Authenticate("wrong")
	if err != nil || ok {
		t.Errorf("expected PAP authentication to fail for wrong password")
	}
}

func TestAuthenticateCHAP(t *testing.T) {
	req := NewPacket(AccessRequest, nil)
	ra := BuildRandomAuthenticator()
	req.Authenticator = ra

	password := "mypassword"
	chapID := byte(7)
	sum := md5.Sum(append(append([]byte{chapID}, []byte(password)...), ra[:]...))
	chapPassword := append([]byte{chapID}, sum[:]...)
	req.Add("CHAP-Password", chapPassword)

	ok, err := req.Authenticate(password)
	if err != nil || !ok {
		t.Errorf("expected CHAP authentication to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = req.Authenticate("wrong")
	if err != nil || ok {
		t.Errorf("expected CHAP authentication to fail for wrong password")
	}
}
