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
	"errors"
	"strconv"
	"testing"
)

func TestDetectFamily(t *testing.T) {
	tests := map[string]ipFamily{
		",":                 familyUnknown,
		":.":                familyUnknown,
		"1":                 familyUnknown,
		".":                 familyUnknown,
		"":                  familyUnknown,
		"127.0.0.1":         familyIPv4,
		"0.0.0.0":           familyIPv4,
		"::ffff:43.0.192.2": familyIPv4Embedded,
		"::0000:43.0.192.2": familyIPv4Embedded,
		"::43.0.192.2":      familyIPv4Embedded,
		"::ffef:43.0.192.2": familyUnknown,
		"::0.0.0.1":         familyUnknown,
		"::1":               familyIPv6,
		"::2":               familyIPv6,
		"::ffff:2b00:c002":  familyIPv6,
		"2001:db8::c001":    familyIPv6,
	}

	for in, want := range tests {
		if have := detectFamily(in); want != have {
			t.Errorf("detectFamily(%q) want %d, have %d", in, want, have)
		}
	}
}

func TestTextToNumericFormatV6(t *testing.T) {
	for _, in := range []string{
		"700:0",
		"7078:0:7",
		"",
		":",
		":::",
		"1:::2",
		"1::2::3",
		":1:2:3:4:5:6:7",
		"1:2:3:4:5:6:7:",
		"1:2:3:4:5:6:7::8",
		"::1.2.3",
		"::1.2.3.4.5",
		"::1.2.3.4:1",
		"1.2.3.4",
		"::g",
	} {
		if have := textToNumericFormatV6(in); have != nil {
			t.Errorf("textToNumericFormatV6(%q) want nil, have %v", in, have)
		}
	}

	tests := map[string][]byte{
		"::":                {0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		"::1":               {0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		"1::":               {0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		"::ffff:43.0.192.2": {0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 43, 0, 192, 2},
		"1:2:3:4:5:6:7:8":   {0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0, 8},
		"1:2:3:4:5:6::8":    {0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 0, 0, 8},
		"2001:DB8::C001":    {0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xc0, 0x01},
	}

	for in, want := range tests {
		if have := textToNumericFormatV6(in); !bytes.Equal(want, have) {
			t.Errorf("textToNumericFormatV6(%q) want %v, have %v", in, want, have)
		}
	}
}

func TestParseHextet(t *testing.T) {
	tests := []struct {
		in   string
		want uint16
		err  error
	}{
		{in: "0", want: 0},
		{in: "c001", want: 0xc001},
		{in: "FFFF", want: 0xffff},
		{in: "db8", want: 0xdb8},
		{in: "", err: strconv.ErrSyntax},
		{in: "A1B2C3", err: strconv.ErrRange},
		{in: "12g4", err: strconv.ErrSyntax},
		{in: "+1", err: strconv.ErrSyntax},
	}

	for _, test := range tests {
		have, err := parseHextet(test.in)
		if test.err != nil {
			var numErr *strconv.NumError
			if !errors.As(err, &numErr) || !errors.Is(err, test.err) {
				t.Errorf("parseHextet(%q) want NumError %v, have %v", test.in, test.err, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHextet(%q) unexpected error: %v", test.in, err)
			continue
		}
		if want := test.want; want != have {
			t.Errorf("parseHextet(%q) want %#x, have %#x", test.in, want, have)
		}
	}
}

func TestIsValidIPv4Word(t *testing.T) {
	tests := []struct {
		s        string
		from, to int
		want     bool
	}{
		{s: "$࿾", from: 0, to: 2, want: false},
		{s: "0", from: 0, to: 1, want: true},
		{s: "00", from: 0, to: 2, want: false},
		{s: "01", from: 0, to: 2, want: false},
		{s: "10", from: 0, to: 2, want: true},
		{s: "255", from: 0, to: 3, want: true},
		{s: "256", from: 0, to: 3, want: false},
		{s: "1000", from: 0, to: 4, want: false},
		{s: "1.23.4", from: 2, to: 4, want: true},
		{s: "12", from: 1, to: 1, want: false},
		{s: "12", from: 0, to: 3, want: false},
		{s: "12", from: -1, to: 1, want: false},
		{s: "١", from: 0, to: 2, want: false},
	}

	for _, test := range tests {
		if have := isValidIPv4Word(test.s, test.from, test.to); test.want != have {
			t.Errorf("isValidIPv4Word(%q, %d, %d) want %t, have %t", test.s, test.from, test.to, test.want, have)
		}
	}
}

func TestEmbeddedIPv4(t *testing.T) {
	tests := []struct {
		desc string
		in   []byte
		want []byte
		ok   bool
	}{
		{desc: "mapped", in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 1, 2, 3, 4}, want: []byte{1, 2, 3, 4}, ok: true},
		{desc: "compat", in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4}, want: []byte{1, 2, 3, 4}, ok: true},
		{desc: "compat 0.0.0.2", in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}, want: []byte{0, 0, 0, 2}, ok: true},
		{desc: "unspecified", in: make([]byte, 16)},
		{desc: "loopback", in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}},
		{desc: "bad marker", in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xef, 1, 2, 3, 4}},
		{desc: "nonzero prefix", in: []byte{0x20, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 1, 2, 3, 4}},
		{desc: "short", in: []byte{1, 2, 3, 4}},
	}

	for _, test := range tests {
		have, ok := embeddedIPv4(test.in)
		if test.ok != ok {
			t.Errorf("embeddedIPv4(%s) want ok %t, have %t", test.desc, test.ok, ok)
			continue
		}
		if !bytes.Equal(test.want, have) {
			t.Errorf("embeddedIPv4(%s) want %v, have %v", test.desc, test.want, have)
		}
	}
}

func TestWriteIPv6(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{in: make([]byte, 16), want: "::"},
		{in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, want: "::1"},
		{in: []byte{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, want: "1::"},
		{in: []byte{0, 1, 0, 0, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}, want: "1:0:1:1:1:1:1:1"},
		{in: []byte{0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 1}, want: "1::1:0:0:1:1"},
		{in: []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0xab, 0xcd, 0, 0, 0, 0, 0, 0}, want: "fe80::abcd:0:0:0"},
	}

	for _, test := range tests {
		if have := writeIPv6(test.in); test.want != have {
			t.Errorf("writeIPv6(%v) want %q, have %q", test.in, test.want, have)
		}
	}
}
