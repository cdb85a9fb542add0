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
	"strconv"
	"strings"
)

// ipFamily is the outcome of classifying an address literal.
type ipFamily int

const (
	familyUnknown ipFamily = iota
	familyIPv4
	// familyIPv4Embedded is IPv6 text carrying a mapped or compatible IPv4
	// address, e.g. ::ffff:43.0.192.2 or ::43.0.192.2.
	familyIPv4Embedded
	familyIPv6
)

const (
	ipv4Len    = 4
	ipv6Len    = 16
	hextetLen  = 4
	hextetSize = 8
)

// detectFamily reports which address family the text represents.
func detectFamily(s string) ipFamily {
	family, _ := parseIPText(s)
	return family
}

// parseIPText classifies s and returns its raw address. IPv4 and embedded
// IPv4 results are 4 bytes, IPv6 results are 16 bytes.
func parseIPText(s string) (ipFamily, []byte) {
	if strings.IndexByte(s, ':') < 0 {
		if !isValidIPv4Address(s, 0, len(s)) {
			return familyUnknown, nil
		}
		return familyIPv4, textToNumericFormatV4(s)
	}

	addr := textToNumericFormatV6(s)
	if addr == nil {
		return familyUnknown, nil
	}

	// Only a dotted tail marks the text as a deliberately embedded IPv4
	// address. Its prefix must be the mapped or compatible form, anything
	// else (::ffef:43.0.192.2) is left unrecognized.
	if strings.IndexByte(s, '.') >= 0 {
		if v4, ok := embeddedIPv4(addr); ok {
			return familyIPv4Embedded, v4
		}
		return familyUnknown, nil
	}
	return familyIPv6, addr
}

// embeddedIPv4 returns the IPv4 address held by a 16 byte IPv4-mapped
// (::ffff:a.b.c.d) or IPv4-compatible (::a.b.c.d) address. The unspecified
// address :: and the loopback ::1 are not compatible addresses.
func embeddedIPv4(addr []byte) ([]byte, bool) {
	if len(addr) != ipv6Len {
		return nil, false
	}
	for i := 0; i < 10; i++ {
		if addr[i] != 0 {
			return nil, false
		}
	}

	switch {
	case addr[10] == 0xff && addr[11] == 0xff:
		// mapped
	case addr[10] == 0 && addr[11] == 0:
		if addr[12] == 0 && addr[13] == 0 && addr[14] == 0 && (addr[15] == 0 || addr[15] == 1) {
			return nil, false
		}
	default:
		return nil, false
	}

	v4 := make([]byte, ipv4Len)
	copy(v4, addr[12:])
	return v4, true
}

// isValidIPv4Address reports whether s[from:to] is exactly four dot
// separated decimal words.
func isValidIPv4Address(s string, from, to int) bool {
	if from < 0 || to > len(s) || from >= to {
		return false
	}

	words := 0
	start := from
	for i := from; i <= to; i++ {
		if i < to && s[i] != '.' {
			continue
		}
		if words == ipv4Len || !isValidIPv4Word(s, start, i) {
			return false
		}
		words++
		start = i + 1
	}
	return words == ipv4Len
}

// isValidIPv4Word reports whether s[from:to] is a decimal number between 0
// and 255 without a leading zero. A lone "0" is valid.
func isValidIPv4Word(s string, from, to int) bool {
	if from < 0 || to > len(s) || from >= to {
		return false
	}
	n := to - from
	if n > 3 {
		return false
	}
	if n > 1 && s[from] == '0' {
		return false
	}

	v := 0
	for i := from; i < to; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		v = v*10 + int(c-'0')
	}
	return v <= 255
}

// textToNumericFormatV4 expects s to have passed isValidIPv4Address.
func textToNumericFormatV4(s string) []byte {
	addr := make([]byte, 0, ipv4Len)
	v := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			addr = append(addr, byte(v))
			v = 0
			continue
		}
		v = v*10 + int(s[i]-'0')
	}
	return addr
}

// textToNumericFormatV6 parses IPv6 text, including a trailing dotted IPv4
// tail, into 16 big-endian bytes. It returns nil for anything malformed.
func textToNumericFormatV6(s string) []byte {
	lastColon := strings.LastIndexByte(s, ':')
	if lastColon < 0 {
		return nil
	}

	if tail := s[lastColon+1:]; strings.IndexByte(tail, '.') >= 0 {
		if !isValidIPv4Address(tail, 0, len(tail)) {
			return nil
		}
		v4 := textToNumericFormatV4(tail)
		s = s[:lastColon+1] +
			strconv.FormatUint(uint64(v4[0])<<8|uint64(v4[1]), 16) + ":" +
			strconv.FormatUint(uint64(v4[2])<<8|uint64(v4[3]), 16)
	}

	for i := 0; i < len(s); i++ {
		if s[i] != ':' && !isHexDigit(s[i]) {
			return nil
		}
	}

	var hi, lo []uint16
	skip := strings.Index(s, "::")
	if skip < 0 {
		var ok bool
		if hi, ok = parseHextets(s); !ok || len(hi) != hextetSize {
			return nil
		}
	} else {
		if strings.Contains(s[skip+1:], "::") {
			return nil
		}
		var ok bool
		if hi, ok = parseHextets(s[:skip]); !ok {
			return nil
		}
		if lo, ok = parseHextets(s[skip+2:]); !ok {
			return nil
		}
		// :: stands in for at least one group.
		if len(hi)+len(lo) >= hextetSize {
			return nil
		}
	}

	addr := make([]byte, ipv6Len)
	for i, h := range hi {
		addr[2*i] = byte(h >> 8)
		addr[2*i+1] = byte(h)
	}
	offset := ipv6Len - 2*len(lo)
	for i, h := range lo {
		addr[offset+2*i] = byte(h >> 8)
		addr[offset+2*i+1] = byte(h)
	}
	return addr
}

// parseHextets splits colon separated groups. The empty string holds no
// groups; an empty group anywhere else is malformed.
func parseHextets(s string) ([]uint16, bool) {
	if s == "" {
		return nil, true
	}
	parts := strings.Split(s, ":")
	if len(parts) > hextetSize {
		return nil, false
	}
	hextets := make([]uint16, 0, len(parts))
	for _, p := range parts {
		h, err := parseHextet(p)
		if err != nil {
			return nil, false
		}
		hextets = append(hextets, h)
	}
	return hextets, true
}

// parseHextet parses one group of 1 to 4 hexadecimal digits.
func parseHextet(s string) (uint16, error) {
	if len(s) == 0 {
		return 0, &strconv.NumError{Func: "parseHextet", Num: s, Err: strconv.ErrSyntax}
	}
	if len(s) > hextetLen {
		return 0, &strconv.NumError{Func: "parseHextet", Num: s, Err: strconv.ErrRange}
	}
	var v uint16
	for i := 0; i < len(s); i++ {
		d, ok := hexValue(s[i])
		if !ok {
			return 0, &strconv.NumError{Func: "parseHextet", Num: s, Err: strconv.ErrSyntax}
		}
		v = v<<4 | uint16(d)
	}
	return v, nil
}

func isHexDigit(c byte) bool {
	_, ok := hexValue(c)
	return ok
}

func hexValue(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// writeIPv4 renders 4 bytes as dotted decimal.
func writeIPv4(addr []byte) string {
	var b strings.Builder
	b.Grow(15)
	for i, v := range addr {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	return b.String()
}

// writeIPv6 renders 16 bytes in RFC 5952 canonical form: lowercase, no
// leading zeros, and the longest run of two or more zero groups (leftmost
// on ties) compressed to "::".
func writeIPv6(addr []byte) string {
	var groups [hextetSize]uint16
	for i := range groups {
		groups[i] = uint16(addr[2*i])<<8 | uint16(addr[2*i+1])
	}

	bestStart, bestLen := -1, 0
	for i := 0; i < hextetSize; {
		if groups[i] != 0 {
			i++
			continue
		}
		j := i
		for j < hextetSize && groups[j] == 0 {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}
	if bestLen < 2 {
		bestStart = -1
	}

	var b strings.Builder
	b.Grow(39)
	for i := 0; i < hextetSize; i++ {
		if i == bestStart {
			b.WriteString("::")
			i += bestLen - 1
			continue
		}
		if i > 0 && i != bestStart+bestLen {
			b.WriteByte(':')
		}
		b.WriteString(strconv.FormatUint(uint64(groups[i]), 16))
	}
	return b.String()
}
