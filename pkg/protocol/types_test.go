package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeClassification(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		welcome bool
		request bool
	}{
		{"welcome", `{"type":"welcome","server":"relay"}`, true, false},
		{"request", `{"jsonrpc":"2.0","id":1,"method":"bridge.ping"}`, false, true},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"tabs.list"}`, false, true},
		{"missing id", `{"jsonrpc":"2.0","method":"bridge.ping"}`, false, false},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, false, false},
		{"missing marker", `{"id":1,"method":"bridge.ping"}`, false, false},
		{"hello echo", `{"type":"hello"}`, false, false},
	}

	for _, tc := range cases {
		var env Envelope
		if err := json.Unmarshal([]byte(tc.raw), &env); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if env.IsWelcome() != tc.welcome {
			t.Errorf("%s: IsWelcome = %v, want %v", tc.name, env.IsWelcome(), tc.welcome)
		}
		if env.IsRequest() != tc.request {
			t.Errorf("%s: IsRequest = %v, want %v", tc.name, env.IsRequest(), tc.request)
		}
	}
}

func TestResponseExclusivity(t *testing.T) {
	id := json.RawMessage(`5`)

	ok := NewResult(id, map[string]bool{"ok": true})
	if ok.Error != nil {
		t.Error("result response carries an error")
	}

	fail := NewError(id, CodeMethodNotFound, "method not found: x")
	if fail.Result != nil {
		t.Error("error response carries a result")
	}

	payload, err := json.Marshal(fail)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	json.Unmarshal(payload, &decoded)
	if _, hasResult := decoded["result"]; hasResult {
		t.Error("error response serializes a result field")
	}
}

func TestHelloShape(t *testing.T) {
	payload, err := json.Marshal(NewHello("tok"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(payload, &decoded)

	if decoded["type"] != "hello" {
		t.Errorf("type = %v", decoded["type"])
	}
	if decoded["token"] != "tok" {
		t.Errorf("token = %v", decoded["token"])
	}
	if decoded["client"] != ClientName {
		t.Errorf("client = %v", decoded["client"])
	}
	if decoded["version"] != float64(ProtocolVersion) {
		t.Errorf("version = %v", decoded["version"])
	}

	// Blank token is omitted entirely, not sent as "".
	payload, _ = json.Marshal(NewHello(""))
	decoded = nil
	json.Unmarshal(payload, &decoded)
	if _, hasToken := decoded["token"]; hasToken {
		t.Error("blank token serialized")
	}
}
