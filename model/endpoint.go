// Copyright 2022 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidPort is returned when a port does not fit in 16 unsigned bits.
var ErrInvalidPort = errors.New("invalid port")

// Endpoint holds the network context of a node in the service graph.
//
// An Endpoint is immutable once built and safe for concurrent use. At most
// one address family is set: IPv4-mapped and IPv4-compatible IPv6 addresses
// are stored as IPv4.
type Endpoint struct {
	serviceName string
	ipv4        string
	ipv4Bytes   []byte
	ipv6        string
	ipv6Bytes   []byte
	port        uint16
}

// ServiceName returns the lowercase service name or "" if absent.
func (e *Endpoint) ServiceName() string {
	if e == nil {
		return ""
	}
	return e.serviceName
}

// IPv4 returns the dotted decimal IPv4 address or "" if absent.
func (e *Endpoint) IPv4() string {
	if e == nil {
		return ""
	}
	return e.ipv4
}

// IPv4Bytes returns a copy of the 4 byte IPv4 address or nil if absent.
func (e *Endpoint) IPv4Bytes() []byte {
	if e == nil {
		return nil
	}
	return cloneBytes(e.ipv4Bytes)
}

// IPv6 returns the canonical lowercase IPv6 address or "" if absent.
func (e *Endpoint) IPv6() string {
	if e == nil {
		return ""
	}
	return e.ipv6
}

// IPv6Bytes returns a copy of the 16 byte IPv6 address or nil if absent.
func (e *Endpoint) IPv6Bytes() []byte {
	if e == nil {
		return nil
	}
	return cloneBytes(e.ipv6Bytes)
}

// IPv4Addr returns the IPv4 address, or the zero Addr if absent.
func (e *Endpoint) IPv4Addr() netip.Addr {
	if e == nil || e.ipv4Bytes == nil {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(e.ipv4Bytes))
}

// IPv6Addr returns the IPv6 address, or the zero Addr if absent.
func (e *Endpoint) IPv6Addr() netip.Addr {
	if e == nil || e.ipv6Bytes == nil {
		return netip.Addr{}
	}
	return netip.AddrFrom16([16]byte(e.ipv6Bytes))
}

// Port returns the port or 0 if absent.
func (e *Endpoint) Port() uint16 {
	if e == nil {
		return 0
	}
	return e.port
}

// PortAsInt returns the port as int or 0 if absent.
func (e *Endpoint) PortAsInt() int {
	return int(e.Port())
}

// Empty returns if all Endpoint properties are empty / unspecified.
func (e *Endpoint) Empty() bool {
	return e == nil ||
		(e.serviceName == "" && e.port == 0 && e.ipv4Bytes == nil && e.ipv6Bytes == nil)
}

// Equal reports whether both endpoints hold the same values.
func (e *Endpoint) Equal(o *Endpoint) bool {
	if e == nil || o == nil {
		return e.Empty() && o.Empty()
	}
	return e.serviceName == o.serviceName &&
		e.port == o.port &&
		e.ipv4 == o.ipv4 &&
		e.ipv6 == o.ipv6 &&
		bytes.Equal(e.ipv4Bytes, o.ipv4Bytes) &&
		bytes.Equal(e.ipv6Bytes, o.ipv6Bytes)
}

// ToBuilder returns a Builder seeded with the values of this Endpoint.
func (e *Endpoint) ToBuilder() *Builder {
	b := NewBuilder()
	if e == nil {
		return b
	}
	b.serviceName = e.serviceName
	b.ipv4 = e.ipv4
	b.ipv4Bytes = cloneBytes(e.ipv4Bytes)
	b.ipv6 = e.ipv6
	b.ipv6Bytes = cloneBytes(e.ipv6Bytes)
	b.port = e.port
	return b
}

// String lists the populated fields, e.g.
// Endpoint{serviceName=frontend, ipv4=10.0.0.1, port=8080}.
func (e *Endpoint) String() string {
	var b strings.Builder
	b.WriteString("Endpoint{")
	sep := ""
	field := func(name, value string) {
		b.WriteString(sep)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
		sep = ", "
	}
	if v := e.ServiceName(); v != "" {
		field("serviceName", v)
	}
	if v := e.IPv4(); v != "" {
		field("ipv4", v)
	}
	if v := e.IPv6(); v != "" {
		field("ipv6", v)
	}
	if v := e.Port(); v != 0 {
		field("port", strconv.Itoa(int(v)))
	}
	b.WriteByte('}')
	return b.String()
}

type endpointJSON struct {
	ServiceName string `json:"serviceName,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// MarshalJSON exports the Endpoint in the Zipkin V2 API format.
func (e *Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(endpointJSON{
		ServiceName: e.ServiceName(),
		IPv4:        e.IPv4(),
		IPv6:        e.IPv6(),
		Port:        e.PortAsInt(),
	})
}

// UnmarshalJSON imports a Zipkin V2 API endpoint. Values pass through the
// Builder, so addresses are normalized and unparseable ones are dropped.
// When both families are present the IPv4 address wins.
func (e *Endpoint) UnmarshalJSON(b []byte) error {
	var ep endpointJSON
	if err := json.Unmarshal(b, &ep); err != nil {
		return err
	}
	builder := NewBuilder().ServiceName(ep.ServiceName)
	if ep.IPv6 != "" {
		builder.ParseIP(ep.IPv6)
	}
	if ep.IPv4 != "" {
		builder.ParseIP(ep.IPv4)
	}
	if err := builder.Port(ep.Port); err != nil {
		return err
	}
	*e = *builder.Build()
	return nil
}

// Builder stages Endpoint values. It is not safe for concurrent use.
type Builder struct {
	serviceName string
	ipv4        string
	ipv4Bytes   []byte
	ipv6        string
	ipv6Bytes   []byte
	port        uint16
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ServiceName sets the lowercased service name. An empty name clears it.
func (b *Builder) ServiceName(name string) *Builder {
	b.serviceName = strings.ToLower(name)
	return b
}

// Port sets the port. Values of zero or below clear the port, as many
// platform APIs report -1 or 0 for an unknown port. Values above 65535
// return an error wrapping ErrInvalidPort and leave the Builder unchanged.
func (b *Builder) Port(port int) error {
	if port > math.MaxUint16 {
		return fmt.Errorf("%w %d", ErrInvalidPort, port)
	}
	if port <= 0 {
		b.port = 0
		return nil
	}
	b.port = uint16(port)
	return nil
}

// PortOrNil is like Port where nil clears the port.
func (b *Builder) PortOrNil(port *int) error {
	if port == nil {
		b.port = 0
		return nil
	}
	return b.Port(*port)
}

// IP sets the address from a string, []byte, net.IP, netip.Addr or net.Addr
// value. Invalid or unsupported input is ignored; use the ParseIP methods
// to learn whether it was accepted.
func (b *Builder) IP(ip interface{}) *Builder {
	switch v := ip.(type) {
	case string:
		b.ParseIP(v)
	case net.IP:
		b.ParseIPBytes(v)
	case []byte:
		b.ParseIPBytes(v)
	case netip.Addr:
		b.ParseAddr(v)
	case net.Addr:
		b.ParseNetAddr(v)
	}
	return b
}

// ParseIP sets the address from IPv4 or IPv6 text and reports whether it
// was recognized. On false the Builder is left unchanged.
func (b *Builder) ParseIP(s string) bool {
	if s == "" {
		return false
	}
	switch family, addr := parseIPText(s); family {
	case familyIPv4:
		b.setIPv4(s, addr)
	case familyIPv4Embedded:
		b.setIPv4(writeIPv4(addr), addr)
	case familyIPv6:
		b.setIPv6(writeIPv6(addr), addr)
	default:
		return false
	}
	return true
}

// ParseIPBytes sets the address from 4 (IPv4) or 16 (IPv6) raw bytes and
// reports whether it was accepted. On false the Builder is left unchanged.
func (b *Builder) ParseIPBytes(ip []byte) bool {
	switch len(ip) {
	case ipv4Len:
		addr := cloneBytes(ip)
		b.setIPv4(writeIPv4(addr), addr)
	case ipv6Len:
		if v4, ok := embeddedIPv4(ip); ok {
			b.setIPv4(writeIPv4(v4), v4)
			return true
		}
		addr := cloneBytes(ip)
		b.setIPv6(writeIPv6(addr), addr)
	default:
		return false
	}
	return true
}

// ParseAddr sets the address from a resolved netip.Addr. The zero Addr is
// rejected and any IPv6 zone is dropped.
func (b *Builder) ParseAddr(addr netip.Addr) bool {
	switch {
	case !addr.IsValid():
		return false
	case addr.Is4():
		v4 := addr.As4()
		return b.ParseIPBytes(v4[:])
	default:
		v6 := addr.As16()
		return b.ParseIPBytes(v6[:])
	}
}

// ParseNetAddr sets the address from a *net.IPAddr, *net.TCPAddr or
// *net.UDPAddr. The port of the address is not used.
func (b *Builder) ParseNetAddr(addr net.Addr) bool {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPAddr:
		if a == nil {
			return false
		}
		ip = a.IP
	case *net.TCPAddr:
		if a == nil {
			return false
		}
		ip = a.IP
	case *net.UDPAddr:
		if a == nil {
			return false
		}
		ip = a.IP
	default:
		return false
	}
	return b.ParseIPBytes(ip)
}

// Build returns an immutable snapshot of the staged values.
func (b *Builder) Build() *Endpoint {
	return &Endpoint{
		serviceName: b.serviceName,
		ipv4:        b.ipv4,
		ipv4Bytes:   cloneBytes(b.ipv4Bytes),
		ipv6:        b.ipv6,
		ipv6Bytes:   cloneBytes(b.ipv6Bytes),
		port:        b.port,
	}
}

func (b *Builder) setIPv4(text string, addr []byte) {
	b.ipv4, b.ipv4Bytes = text, addr
	b.ipv6, b.ipv6Bytes = "", nil
}

func (b *Builder) setIPv6(text string, addr []byte) {
	b.ipv6, b.ipv6Bytes = text, addr
	b.ipv4, b.ipv4Bytes = "", nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
