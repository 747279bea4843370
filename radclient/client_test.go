package radclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/npax/radius/radcodec"
)

const testSecret = "mysecret"

// echoServer is a minimal UDP RADIUS responder: it decodes the
// request, builds an Access-Accept copying the request's attributes,
// optionally sleeping first, and writes the encoded response back.
// Mirrors the reference library's own echoHandler test fixture.
func echoServer(t *testing.T, sleep time.Duration) (addr string, stop func()) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			data := append([]byte{}, buf[:n]...)
			go func() {
				if sleep > 0 {
					time.Sleep(sleep)
				}
				req, err := radcodec.DecodePacketWithSecret(data, nil, testSecret, [16]byte{})
				if err != nil {
					return
				}
				resp := radcodec.NewResponse(req, radcodec.AccessAccept)
				for _, a := range req.Attributes {
					resp.Attributes = append(resp.Attributes, a)
				}
				wire, err := resp.Encode(testSecret, req.Identifier, req.Authenticator, false)
				if err != nil {
					return
				}
				conn.WriteTo(wire, from)
			}()
		}
	}()

	return conn.LocalAddr().String(), func() {
		conn.Close()
		<-done
	}
}

func TestSendAndWaitRoundTrip(t *testing.T) {
	addr, stop := echoServer(t, 0)
	defer stop()

	client, err := NewClient("", 3, time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	req := radcodec.NewPacket(radcodec.AccessRequest, nil)
	if err := req.Add("User-Name", "someone"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.SendAndWait(ctx, req, Endpoint{Address: addr, Secret: testSecret}, RetryPolicy{Attempts: 2, Interval: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("SendAndWait: %v", err)
	}
	un, ok := resp.Get("User-Name")
	if !ok || un.AsString() != "someone" {
		t.Errorf("expected echoed User-Name, got %+v", un)
	}
}

func TestSendAndWaitTimeout(t *testing.T) {
	addr, stop := echoServer(t, 2*time.Second)
	defer stop()

	client, err := NewClient("", 3, time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	req := radcodec.NewPacket(radcodec.AccessRequest, nil)
	req.Add("User-Name", "slowpoke")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = client.SendAndWait(ctx, req, Endpoint{Address: addr, Secret: testSecret}, RetryPolicy{Attempts: 2, Interval: 200 * time.Millisecond})
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBlacklistOpensAfterThreshold(t *testing.T) {
	// Nothing is listening on this address, so every attempt times out.
	deadConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	addr := deadConn.LocalAddr().String()
	deadConn.Close()

	client, err := NewClient("", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	endpoint := Endpoint{Address: addr, Secret: testSecret}
	req := radcodec.NewPacket(radcodec.AccessRequest, nil)
	req.Add("User-Name", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = client.SendAndWait(ctx, req, endpoint, RetryPolicy{Attempts: 1, Interval: 200 * time.Millisecond})
	if err != ErrTimeout {
		t.Fatalf("expected first attempt to time out, got %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	_, err = client.SendAndWait(ctx2, req, endpoint, RetryPolicy{Attempts: 1, Interval: 200 * time.Millisecond})
	if err != ErrEndpointBlacklisted {
		t.Fatalf("expected endpoint to be blacklisted after threshold, got %v", err)
	}
}

func TestCloseCancelsPendingRequests(t *testing.T) {
	deadConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	addr := deadConn.LocalAddr().String()
	deadConn.Close()

	client, err := NewClient("", 10, time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	req := radcodec.NewPacket(radcodec.AccessRequest, nil)
	req.Add("User-Name", "x")

	resultChan, err := client.Send(req, Endpoint{Address: addr, Secret: testSecret}, RetryPolicy{Attempts: 5, Interval: 10 * time.Second})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	client.Close()

	select {
	case r := <-resultChan:
		if r.Err != ErrClientClosed {
			t.Errorf("expected ErrClientClosed, got %v", r.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation result")
	}
}
