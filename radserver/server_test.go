package radserver

import (
	"net"
	"testing"
	"time"

	"github.com/npax/radius/radcodec"
)

const testSecret = "secret"

func echoHandler(request *radcodec.Packet) (*radcodec.Packet, error) {
	response := radcodec.NewResponse(request, radcodec.AccessAccept)
	response.Attributes = append(response.Attributes, request.Attributes...)
	return response, nil
}

func fixedSecret(secret string) SecretSource {
	return func(remoteAddr string) (string, bool) { return secret, true }
}

func TestServerRoundTrip(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", fixedSecret(testSecret), echoHandler)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	clientSocket, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer clientSocket.Close()

	request := radcodec.NewPacket(radcodec.AccessRequest, nil)
	if err := request.Add("User-Name", "myUserName"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ra := radcodec.BuildRandomAuthenticator()
	wire, err := request.Encode(testSecret, 100, ra, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := clientSocket.WriteTo(wire, srv.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	clientSocket.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := clientSocket.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	response, err := radcodec.DecodePacketWithSecret(buf[:n], nil, testSecret, ra)
	if err != nil {
		t.Fatalf("DecodePacketWithSecret: %v", err)
	}
	un, ok := response.Get("User-Name")
	if !ok || un.AsString() != "myUserName" {
		t.Errorf("expected echoed User-Name, got %+v", un)
	}
}

func TestServerDropsUnknownClient(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", func(string) (string, bool) { return "", false }, echoHandler)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	clientSocket, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer clientSocket.Close()

	request := radcodec.NewPacket(radcodec.AccessRequest, nil)
	request.Add("User-Name", "x")
	ra := radcodec.BuildRandomAuthenticator()
	wire, err := request.Encode(testSecret, 1, ra, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	clientSocket.WriteTo(wire, srv.LocalAddr())

	clientSocket.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 4096)
	if _, _, err := clientSocket.ReadFrom(buf); err == nil {
		t.Fatalf("expected no response for an unknown client, but got one")
	}
}

func TestServerWildcardBindEnablesControlMessages(t *testing.T) {
	srv, err := NewServer("0.0.0.0:0", fixedSecret(testSecret), echoHandler)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	if srv.ipv4conn == nil {
		t.Errorf("expected a wildcard bind to enable destination control messages")
	}
}

func TestServerRejectsBadRequestAuthenticator(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", fixedSecret(testSecret), echoHandler)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	clientSocket, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer clientSocket.Close()

	// An Accounting-Request's authenticator must be verified, so encoding
	// with the wrong secret must make the server silently drop it.
	request := radcodec.NewPacket(radcodec.AccountingRequest, nil)
	request.Add("User-Name", "x")
	wire, err := request.Encode("wrong-secret", 1, [16]byte{}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	clientSocket.WriteTo(wire, srv.LocalAddr())

	clientSocket.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 4096)
	if _, _, err := clientSocket.ReadFrom(buf); err == nil {
		t.Fatalf("expected no response for a bad request authenticator, but got one")
	}
}
