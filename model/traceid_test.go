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
	"encoding/json"
	"testing"
)

func TestTraceID(t *testing.T) {
	tests := []struct {
		id   TraceID
		hex  string
		json string
	}{
		{id: TraceID{High: 1, Low: 2}, hex: "00000000000000010000000000000002", json: `"00000000000000010000000000000002"`},
		{id: TraceID{Low: 2}, hex: "0000000000000002", json: `"0000000000000002"`},
	}

	for _, test := range tests {
		if want, have := test.hex, test.id.String(); want != have {
			t.Errorf("String want %q, have %q", want, have)
		}

		b, err := json.Marshal(test.id)
		if err != nil {
			t.Fatalf("Expected successful json serialization, got error: %+v", err)
		}
		if want, have := test.json, string(b); want != have {
			t.Errorf("JSON want %s, have %s", want, have)
		}

		var decoded TraceID
		if err = json.Unmarshal(b, &decoded); err != nil {
			t.Fatalf("Expected successful json deserialization, got error: %+v", err)
		}
		if want, have := test.id, decoded; want != have {
			t.Errorf("Unmarshal want %#v, have %#v", want, have)
		}

		fromHex, err := TraceIDFromHex(test.hex)
		if err != nil {
			t.Fatalf("Expected traceID got error: %+v", err)
		}
		if want, have := test.id, fromHex; want != have {
			t.Errorf("TraceIDFromHex want %#v, have %#v", want, have)
		}
	}

	if !(TraceID{}).Empty() {
		t.Errorf("Expected TraceID to be empty")
	}

	if _, err := TraceIDFromHex("12345678901234zz12345678901234zz"); err == nil {
		t.Errorf("Expected error got nil")
	}

	var traceID TraceID
	if err := json.Unmarshal([]byte(`"12345678901234zz12345678901234zz"`), &traceID); err == nil {
		t.Errorf("Expected error got nil")
	}
}

func TestIDJSON(t *testing.T) {
	b, err := json.Marshal(ID(0xF7F6F5F4F3F2F1F0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, have := `"f7f6f5f4f3f2f1f0"`, string(b); want != have {
		t.Errorf("JSON want %s, have %s", want, have)
	}

	var id ID
	if err = json.Unmarshal(b, &id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, have := ID(0xF7F6F5F4F3F2F1F0), id; want != have {
		t.Errorf("ID want %s, have %s", want, have)
	}
}
