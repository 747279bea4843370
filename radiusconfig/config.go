// Package radiusconfig holds the strongly-typed configuration structs
// used to drive a client or server socket, with a small JSON loader
// that fills in sane defaults after unmarshaling.
package radiusconfig

import (
	"encoding/json"
	"net"
	"os"
	"strings"
)

// ClientConfig drives the retry/timeout/blacklist behavior of a
// client socket.
type ClientConfig struct {
	Retries            int `json:"retries"`
	RetryIntervalMs    int `json:"retryIntervalMs"`
	BlacklistTTLMs     int `json:"blacklistTTLMs"`
	FailCountThreshold int `json:"failCountThreshold"`
}

func (c *ClientConfig) applyDefaults() {
	if c.Retries == 0 {
		c.Retries = 3
	}
	if c.RetryIntervalMs == 0 {
		c.RetryIntervalMs = 3000
	}
	if c.BlacklistTTLMs == 0 {
		c.BlacklistTTLMs = 60000
	}
	if c.FailCountThreshold == 0 {
		c.FailCountThreshold = 3
	}
}

// ServerConfig drives which ports a server socket binds to.
type ServerConfig struct {
	BindAddress string `json:"bindAddress"`
	AuthPort    int    `json:"authPort"`
	AcctPort    int    `json:"acctPort"`
	CoAPort     int    `json:"coAPort"`
}

func (c *ServerConfig) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.AuthPort == 0 {
		c.AuthPort = 1812
	}
	if c.AcctPort == 0 {
		c.AcctPort = 1813
	}
	if c.CoAPort == 0 {
		c.CoAPort = 3799
	}
}

// EndpointConfig names a remote RADIUS peer: a client sends to it, or
// a server accepts requests claiming to come from it.
type EndpointConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	Secret  string `json:"secret"`

	// cidr is the parsed form of Address, computed lazily by CIDR below,
	// so server-side lookups can match a CIDR block instead of just
	// an exact address.
	cidr *net.IPNet
}

// CIDR returns the parsed network for this endpoint's Address,
// normalizing a bare IP to a /32 (or /128 for IPv6), mirroring the
// reference configuration manager's RadiusClients.initialize.
func (e *EndpointConfig) CIDR() (*net.IPNet, error) {
	if e.cidr != nil {
		return e.cidr, nil
	}
	addr := e.Address
	if !strings.Contains(addr, "/") {
		if strings.Contains(addr, ":") {
			addr += "/128"
		} else {
			addr += "/32"
		}
	}
	_, ipNet, err := net.ParseCIDR(addr)
	if err != nil {
		return nil, err
	}
	e.cidr = ipNet
	return ipNet, nil
}

// Config is the top-level configuration document.
type Config struct {
	Client    ClientConfig     `json:"client"`
	Server    ServerConfig     `json:"server"`
	Endpoints []EndpointConfig `json:"endpoints"`
}

// LoadConfig reads and parses the JSON document at path, filling in
// defaults for any zero-valued field. An empty path yields an
// all-defaults configuration with no endpoints.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.Client.applyDefaults()
	cfg.Server.applyDefaults()
	return &cfg, nil
}

// FindEndpoint resolves the endpoint whose Address exactly matches
// remoteAddr first, then falls back to a CIDR-containment scan,
// mirroring the reference library's FindRadiusClient.
func (c *Config) FindEndpoint(remoteAddr string) (*EndpointConfig, bool) {
	for i := range c.Endpoints {
		if c.Endpoints[i].Address == remoteAddr {
			return &c.Endpoints[i], true
		}
	}
	ip := net.ParseIP(remoteAddr)
	if ip == nil {
		return nil, false
	}
	for i := range c.Endpoints {
		ipNet, err := c.Endpoints[i].CIDR()
		if err != nil {
			continue
		}
		if ipNet.Contains(ip) {
			return &c.Endpoints[i], true
		}
	}
	return nil, false
}
