package radclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/npax/radius/radcodec"
	"github.com/npax/radius/radiuslog"
	"github.com/npax/radius/radiusmetrics"
)

// Endpoint names a remote RADIUS server: where to send packets and
// the shared secret to encode/verify them with.
type Endpoint struct {
	Address string // host:port
	Secret  string
}

// ErrNoFreeIdentifier is returned when an endpoint's 255 identifiers
// are all currently in use.
var ErrNoFreeIdentifier = errors.New("radclient: no free identifier for endpoint")

// ErrTimeout is delivered on a pending request's completion channel
// once its retry budget is exhausted without a matching response.
var ErrTimeout = errors.New("radclient: request timed out")

// ErrEndpointBlacklisted is delivered on a request's completion channel,
// without any packet being sent, when the target endpoint is currently
// circuit-broken.
var ErrEndpointBlacklisted = errors.New("radclient: endpoint is blacklisted")

// ErrClientClosed is returned for requests submitted after Close.
var ErrClientClosed = errors.New("radclient: client is closed")

const (
	statusRunning int32 = iota
	statusClosing
	statusClosed
)

// RetryPolicy controls how many times a request is retransmitted and
// how long to wait between attempts. Every attempt waits the same
// Interval; the interval does not grow between attempts.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultRetryPolicy mirrors the reference client's usual configuration.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Interval: 3 * time.Second}

// pendingRequest is the client socket's bookkeeping for one
// outstanding request. Only ever touched from the event loop
// goroutine.
type pendingRequest struct {
	endpoint      Endpoint
	id            byte
	wire          []byte
	authenticator [16]byte
	secret        string
	request       *radcodec.Packet
	attemptsLeft  int
	policy        RetryPolicy
	timer         *time.Timer
	result        chan Result
}

// Result is delivered on a request's completion channel exactly once.
type Result struct {
	Packet *radcodec.Packet
	Err    error
}

// Messages carried over the event loop channel.

type sendMsg struct {
	request  *radcodec.Packet
	endpoint Endpoint
	policy   RetryPolicy
	result   chan Result
}

type retryMsg struct {
	key string
	id  byte
}

type datagramMsg struct {
	data []byte
	from net.Addr
}

type readErrorMsg struct {
	err error
}

type shutdownMsg struct{}
type closeMsg struct{}

// Client is a RADIUS client socket: a single UDP connection whose
// identifier bitmap, pending-request table and per-endpoint circuit
// breaker are all owned by one event-loop goroutine, avoiding any
// locking of that shared state. A second goroutine owns the blocking
// read loop and only ever posts decoded datagrams into the event loop.
type Client struct {
	conn net.PacketConn

	eventLoopChan chan interface{}
	readDoneChan  chan struct{}
	wg            sync.WaitGroup
	status        atomic.Int32

	ids        map[string]*identifierAllocator
	pending    map[string]map[byte]*pendingRequest
	blacklists map[string]*endpointHealth

	failThreshold   uint
	blacklistPeriod time.Duration
}

// NewClient opens a UDP socket bound to localAddr (empty for any free
// ephemeral port) and starts its event loop and read loop. failThreshold
// and blacklistPeriod configure the per-endpoint circuit breaker (C9).
func NewClient(localAddr string, failThreshold uint, blacklistPeriod time.Duration) (*Client, error) {
	conn, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("radclient: listen: %w", err)
	}

	c := &Client{
		conn:            conn,
		eventLoopChan:   make(chan interface{}, 16),
		readDoneChan:    make(chan struct{}),
		ids:             make(map[string]*identifierAllocator),
		pending:         make(map[string]map[byte]*pendingRequest),
		blacklists:      make(map[string]*endpointHealth),
		failThreshold:   failThreshold,
		blacklistPeriod: blacklistPeriod,
	}

	go c.eventLoop()
	go c.readLoop()

	return c, nil
}

// LocalAddr reports the address the client socket is bound to.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Send submits request for delivery to endpoint and returns a channel
// that receives exactly one Result: on success the decoded response,
// on failure ErrTimeout, ErrEndpointBlacklisted or a decode/encode
// error. policy controls retry attempts/interval.
func (c *Client) Send(request *radcodec.Packet, endpoint Endpoint, policy RetryPolicy) (<-chan Result, error) {
	if c.status.Load() != statusRunning {
		return nil, ErrClientClosed
	}
	result := make(chan Result, 1)
	c.wg.Add(1)
	c.eventLoopChan <- sendMsg{request: request, endpoint: endpoint, policy: policy, result: result}
	return result, nil
}

// SendAndWait is the synchronous convenience wrapper built on Send,
// mirroring the reference library's RadiusExchange (the method its
// own tests actually exercise).
func (c *Client) SendAndWait(ctx context.Context, request *radcodec.Packet, endpoint Endpoint, policy RetryPolicy) (*radcodec.Packet, error) {
	resultChan, err := c.Send(request, endpoint, policy)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-resultChan:
		return r.Packet, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels every outstanding request, stops the read loop and
// drains the event loop. Takes some time to execute, mirroring the
// reference client socket's own Close.
func (c *Client) Close() {
	if !c.status.CompareAndSwap(statusRunning, statusClosing) {
		return
	}
	c.eventLoopChan <- shutdownMsg{}
	<-c.readDoneChan
	c.wg.Wait()
	c.eventLoopChan <- closeMsg{}
}

func (c *Client) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			c.eventLoopChan <- readErrorMsg{err: err}
			close(c.readDoneChan)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.eventLoopChan <- datagramMsg{data: data, from: addr}
	}
}

func (c *Client) eventLoop() {
	for msg := range c.eventLoopChan {
		switch v := msg.(type) {

		case sendMsg:
			c.handleSend(v)

		case retryMsg:
			c.handleRetry(v.key, v.id)

		case datagramMsg:
			c.handleDatagram(v.data, v.from)

		case readErrorMsg:
			radiuslog.Get().Errorw("client read loop error", "error", v.err)

		case shutdownMsg:
			c.conn.Close()
			c.cancelAll()

		case closeMsg:
			c.status.Store(statusClosed)
			return
		}
	}
}

func (c *Client) handleSend(v sendMsg) {
	defer c.wg.Done()

	endpoint := v.endpoint

	// udpAddr's resolved string form is used as the lookup key
	// throughout, rather than endpoint.Address verbatim, so a reply's
	// from.String() in handleDatagram always matches what was recorded
	// here even when Address names a host rather than a bare IP.
	udpAddr, err := net.ResolveUDPAddr("udp", endpoint.Address)
	if err != nil {
		v.result <- Result{Err: err}
		return
	}
	key := udpAddr.String()

	health, ok := c.blacklists[key]
	if !ok {
		health = newEndpointHealth(c.failThreshold, c.blacklistPeriod)
		c.blacklists[key] = health
	}
	if health.blacklisted(time.Now()) {
		v.result <- Result{Err: ErrEndpointBlacklisted}
		return
	}

	allocator, ok := c.ids[key]
	if !ok {
		allocator = newIdentifierAllocator()
		c.ids[key] = allocator
	}
	id, err := allocator.acquire(key)
	if err != nil {
		v.result <- Result{Err: ErrNoFreeIdentifier}
		return
	}

	request := v.request
	ra := request.Authenticator
	if request.Code == radcodec.AccessRequest && ra == ([16]byte{}) {
		ra = radcodec.BuildRandomAuthenticator()
	}

	wire, err := request.Encode(endpoint.Secret, id, ra, true)
	if err != nil {
		allocator.release(id)
		v.result <- Result{Err: err}
		return
	}

	if _, err := c.conn.WriteTo(wire, udpAddr); err != nil {
		allocator.release(id)
		v.result <- Result{Err: err}
		return
	}

	radiusmetrics.RecordClientRequest(endpoint.Address, strconv.Itoa(int(request.Code)))

	pr := &pendingRequest{
		endpoint:      endpoint,
		id:            id,
		wire:          wire,
		authenticator: ra,
		secret:        endpoint.Secret,
		request:       request,
		attemptsLeft:  v.policy.Attempts - 1,
		policy:        v.policy,
		result:        v.result,
	}

	byID, ok := c.pending[key]
	if !ok {
		byID = make(map[byte]*pendingRequest)
		c.pending[key] = byID
	}
	byID[id] = pr

	c.wg.Add(1)
	pr.timer = time.AfterFunc(v.policy.Interval, func() {
		c.eventLoopChan <- retryMsg{key: key, id: id}
	})
}

func (c *Client) handleRetry(key string, id byte) {
	defer c.wg.Done()

	byID, ok := c.pending[key]
	if !ok {
		return
	}
	pr, ok := byID[id]
	if !ok {
		return
	}

	if pr.attemptsLeft <= 0 {
		c.finish(key, pr, Result{Err: ErrTimeout})
		radiusmetrics.RecordClientTimeout(pr.endpoint.Address, strconv.Itoa(int(pr.request.Code)))
		return
	}

	pr.attemptsLeft--
	if udpAddr, err := net.ResolveUDPAddr("udp", key); err == nil {
		c.conn.WriteTo(pr.wire, udpAddr)
	}

	c.wg.Add(1)
	pr.timer = time.AfterFunc(pr.policy.Interval, func() {
		c.eventLoopChan <- retryMsg{key: key, id: id}
	})
}

func (c *Client) handleDatagram(data []byte, from net.Addr) {
	if len(data) < 20 {
		return
	}
	key := from.String()
	code := strconv.Itoa(int(data[0]))
	id := data[1]

	byID, ok := c.pending[key]
	if !ok {
		radiusmetrics.RecordClientResponseDropped(key, code)
		radiuslog.Get().Debugw("unsolicited or stalled response", "endpoint", key)
		return
	}
	pr, ok := byID[id]
	if !ok {
		radiusmetrics.RecordClientResponseDropped(key, code)
		radiuslog.Get().Debugw("unsolicited or stalled response", "endpoint", key, "id", id)
		return
	}

	decoded, err := radcodec.DecodePacketWithSecret(data, pr.request.Dictionary(), pr.secret, pr.authenticator)
	if err != nil {
		c.finish(key, pr, Result{Err: err})
		return
	}
	if !radcodec.ValidateResponseAuthenticator(data, pr.authenticator, pr.secret) {
		c.finish(key, pr, Result{Err: radcodec.ErrBadAuthenticator})
		return
	}

	radiusmetrics.RecordClientResponse(pr.endpoint.Address, strconv.Itoa(int(decoded.Code)))
	c.finish(key, pr, Result{Packet: decoded})
}

// finish delivers result, stops the retry timer, releases the
// identifier and removes the pending-table entry. If Stop succeeds the
// timer had not fired yet, so wg.Done balances the Add made when it
// was armed; if it had already fired, that fire's own retryMsg handler
// balances the Add itself once it runs.
func (c *Client) finish(key string, pr *pendingRequest, result Result) {
	if pr.timer != nil {
		if pr.timer.Stop() {
			c.wg.Done()
		}
	}
	if allocator, ok := c.ids[key]; ok {
		allocator.release(pr.id)
	}
	if byID, ok := c.pending[key]; ok {
		delete(byID, pr.id)
	}

	// Only outcomes observed through the pending table (timeouts, bad
	// authenticators) feed the circuit breaker; encode and write errors,
	// which handleSend reports before the request enters the table,
	// never reach this function.
	if health, ok := c.blacklists[key]; ok {
		switch {
		case result.Err == nil:
			health.onSuccess()
		case errors.Is(result.Err, ErrTimeout), errors.Is(result.Err, radcodec.ErrBadAuthenticator):
			health.onFailure(time.Now())
		}
	}

	pr.result <- result
}

// cancelAll resolves every still-pending request with ErrClientClosed,
// used during Close.
func (c *Client) cancelAll() {
	for key, byID := range c.pending {
		for id, pr := range byID {
			if pr.timer != nil && pr.timer.Stop() {
				c.wg.Done()
			}
			delete(byID, id)
			pr.result <- Result{Err: ErrClientClosed}
		}
		delete(c.pending, key)
	}
}
