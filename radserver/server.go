// Package radserver implements the RADIUS server front-end: a UDP
// listener that classifies inbound datagrams, resolves the originating
// client's shared secret, validates authenticators, and dispatches
// accepted requests to a user-supplied handler.
package radserver

import (
	"errors"
	"net"
	"strconv"

	"github.com/npax/radius/raddict"
	"github.com/npax/radius/radcodec"
	"github.com/npax/radius/radiuslog"
	"github.com/npax/radius/radiusmetrics"
	"golang.org/x/net/ipv4"
)

// ErrUnknownSecret names the case where the source address of an inbound
// datagram does not match any configured client. A SecretSource reports
// that case by returning ok == false, and the server drops the datagram.
var ErrUnknownSecret = errors.New("radserver: unknown secret for source")

// SecretSource resolves the shared secret for a client address. It is
// usually backed by radiusconfig.Config.FindEndpoint.
type SecretSource func(remoteAddr string) (secret string, ok bool)

// Handler processes a decoded request and returns the response to send
// back, or nil to send nothing (the request is silently dropped).
type Handler func(request *radcodec.Packet) (*radcodec.Packet, error)

// Server is a RADIUS UDP server front-end (specification §4.6, component C8).
type Server struct {
	socket  net.PacketConn
	secrets SecretSource
	handler Handler
	dict    *raddict.Dictionary

	// ipv4conn is non-nil when the server is bound to an IPv4 wildcard
	// address. It layers destination-address control messages on top of
	// socket so an inbound datagram's actual local destination IP can be
	// logged even though the listening socket itself doesn't know which
	// of the host's addresses it was sent to.
	ipv4conn *ipv4.PacketConn

	closing chan struct{}
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithDictionary overrides the dictionary used to decode inbound
// packets. Defaults to raddict.Default().
func WithDictionary(dict *raddict.Dictionary) Option {
	return func(s *Server) { s.dict = dict }
}

// NewServer binds a UDP listener at bindAddr and starts serving
// immediately in a background goroutine, mirroring the reference
// library's NewRadiusServer.
func NewServer(bindAddr string, secrets SecretSource, handler Handler, opts ...Option) (*Server, error) {
	conn, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		socket:  conn,
		secrets: secrets,
		handler: handler,
		dict:    raddict.Default(),
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if isWildcardV4(bindAddr) {
		p := ipv4.NewPacketConn(conn)
		if err := p.SetControlMessage(ipv4.FlagDst, true); err == nil {
			s.ipv4conn = p
		}
	}

	radiuslog.Get().Infow("radius server listening", "address", conn.LocalAddr().String())
	go s.readLoop()
	return s, nil
}

// isWildcardV4 reports whether bindAddr names an IPv4 wildcard host
// (empty or "0.0.0.0"), the only case where control messages are
// worth the extra syscall: a specific bind address already tells us
// which local IP received the datagram.
func isWildcardV4(bindAddr string) bool {
	host, _, err := net.SplitHostPort(bindAddr)
	if err != nil {
		host = bindAddr
	}
	return host == "" || host == "0.0.0.0"
}

// LocalAddr returns the server's bound address.
func (s *Server) LocalAddr() net.Addr { return s.socket.LocalAddr() }

// Close stops the server, causing readLoop to return. No in-flight
// handler invocation is canceled; each runs to completion or fails to
// write a response to a closed socket.
func (s *Server) Close() {
	close(s.closing)
	s.socket.Close()
}

func (s *Server) readLoop() {
	buf := make([]byte, radcodec.MaxPacketLength)
	for {
		n, from, dst, err := s.readFrom(buf)
		if err != nil {
			select {
			case <-s.closing:
				radiuslog.Get().Infow("radius server socket closed", "address", s.socket.LocalAddr().String())
				return
			default:
				radiuslog.Get().Errorw("radius server read error", "error", err)
				return
			}
		}

		if dst != "" {
			radiuslog.Get().Debugw("received datagram", "client", from.String(), "localDestination", dst)
		}

		raw := append([]byte(nil), buf[:n]...)
		s.handle(raw, from)
	}
}

// readFrom reads one datagram, reporting the local destination address
// when the socket is wrapped with an ipv4.PacketConn.
func (s *Server) readFrom(buf []byte) (n int, from net.Addr, localDst string, err error) {
	if s.ipv4conn != nil {
		var cm *ipv4.ControlMessage
		n, cm, from, err = s.ipv4conn.ReadFrom(buf)
		if err == nil && cm != nil {
			localDst = cm.Dst.String()
		}
		return n, from, localDst, err
	}
	n, from, err = s.socket.ReadFrom(buf)
	return n, from, "", err
}

// handle implements the classify/validate/dispatch pipeline described in
// specification §4.6. Each accepted request is processed in its own
// goroutine so a slow handler never stalls the read loop.
func (s *Server) handle(raw []byte, from net.Addr) {
	clientAddr := hostOf(from)

	secret, ok := s.secrets(clientAddr)
	if !ok {
		radiusmetrics.RecordServerDrop(clientAddr, "0")
		radiuslog.Get().Warnw("message from unknown client", "client", clientAddr)
		return
	}

	request, err := radcodec.DecodePacketWithSecret(raw, s.dict, secret, [16]byte{})
	if err != nil {
		radiusmetrics.RecordServerDrop(clientAddr, "0")
		radiuslog.Get().Warnw("malformed request", "client", clientAddr, "error", err)
		return
	}

	code := strconv.Itoa(int(request.Code))

	if request.Code != radcodec.AccessRequest {
		if !radcodec.ValidateRequestAuthenticator(raw, secret) {
			radiusmetrics.RecordServerDrop(clientAddr, code)
			radiuslog.Get().Warnw("bad request authenticator", "client", clientAddr, "code", code)
			return
		}
	}

	if request.HasMessageAuthenticator() {
		// Requests other than Access-Request are encoded over a zero
		// authenticator seed, which is also the seed of their HMAC.
		maSeed := request.Authenticator
		if request.Code != radcodec.AccessRequest {
			maSeed = [16]byte{}
		}
		if !radcodec.ValidateMessageAuthenticator(raw, secret, maSeed) {
			radiusmetrics.RecordServerDrop(clientAddr, code)
			radiuslog.Get().Warnw("bad message authenticator", "client", clientAddr, "code", code)
			return
		}
	}

	radiusmetrics.RecordServerRequest(clientAddr, code)

	go s.respond(request, secret, clientAddr, from)
}

func (s *Server) respond(request *radcodec.Packet, secret, clientAddr string, from net.Addr) {
	code := strconv.Itoa(int(request.Code))

	response, err := s.handler(request)
	if err != nil {
		radiusmetrics.RecordServerDrop(clientAddr, code)
		radiuslog.Get().Errorw("handler error", "client", clientAddr, "code", code, "error", err)
		return
	}
	if response == nil {
		return
	}

	wire, err := response.Encode(secret, request.Identifier, request.Authenticator, false)
	if err != nil {
		radiusmetrics.RecordServerDrop(clientAddr, code)
		radiuslog.Get().Errorw("error encoding response", "client", clientAddr, "code", code, "error", err)
		return
	}

	if _, err := s.socket.WriteTo(wire, from); err != nil {
		radiusmetrics.RecordServerDrop(clientAddr, code)
		radiuslog.Get().Errorw("error writing response", "client", clientAddr, "code", code, "error", err)
		return
	}

	radiusmetrics.RecordServerResponse(clientAddr, code)
}

func hostOf(addr net.Addr) string {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
