/*
Package zipkin creates Zipkin endpoints from the network addresses found in
requests, listeners and connections.

Only IP literals are accepted: host names are never resolved.
*/
package zipkin

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// Endpoint errors
var (
	ErrInvalidHost     = errors.New("host is not an IP address")
	ErrUnsupportedAddr = errors.New("unsupported network address")
)

// NewEndpoint creates a new endpoint given the provided serviceName and
// hostPort. hostPort may be a bare IP, "ip:port" or "[ipv6]:port"; an empty
// host yields an endpoint without address.
func NewEndpoint(serviceName string, hostPort string) (*model.Endpoint, error) {
	b := model.NewBuilder().ServiceName(serviceName)

	if hostPort == "" || b.ParseIP(hostPort) {
		return b.Build(), nil
	}

	if strings.IndexByte(hostPort, ':') < 0 {
		hostPort += ":0"
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, err
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, err
	}
	if err = b.Port(int(p)); err != nil {
		return nil, err
	}

	if host != "" && !b.ParseIP(host) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	return b.Build(), nil
}

// NewEndpointOrNil tries to create a new endpoint and returns it. On error
// nil will be returned.
func NewEndpointOrNil(serviceName string, hostPort string) *model.Endpoint {
	if endpoint, err := NewEndpoint(serviceName, hostPort); err == nil {
		return endpoint
	}
	return nil
}

// NewEndpointFromAddr creates a new endpoint from a *net.TCPAddr,
// *net.UDPAddr or *net.IPAddr, such as the ones returned by net.Listener.Addr
// and net.Conn.RemoteAddr.
func NewEndpointFromAddr(serviceName string, addr net.Addr) (*model.Endpoint, error) {
	b := model.NewBuilder().ServiceName(serviceName)

	if !b.ParseNetAddr(addr) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddr, addr)
	}

	var port int
	switch a := addr.(type) {
	case *net.TCPAddr:
		port = a.Port
	case *net.UDPAddr:
		port = a.Port
	}
	if err := b.Port(port); err != nil {
		return nil, err
	}

	return b.Build(), nil
}
