package message

import "testing"

func TestRequestClientName(t *testing.T) {
	req := &Request{}
	if req.ClientName() != "" {
		t.Fatal("expect empty client name without attachment")
	}

	req.KVAttachment = map[string]string{ClientNameKey: "X"}
	if req.ClientName() != "X" {
		t.Fatalf("expect 'X', got '%s'", req.ClientName())
	}
}

func TestRequestLookupClientName(t *testing.T) {
	req := &Request{}
	if _, ok := req.LookupClientName(); ok {
		t.Fatal("expect no client name without attachment")
	}

	req.KVAttachment = map[string]string{ClientNameKey: ""}
	name, ok := req.LookupClientName()
	if !ok || name != "" {
		t.Fatalf("expect present empty name, got %q %v", name, ok)
	}
}

func TestFullName(t *testing.T) {
	req := &Request{ServiceName: "Echo", MethodName: "Echo"}
	if req.FullName() != "Echo.Echo" {
		t.Fatalf("unexpected request name %s", req.FullName())
	}

	var m *MethodInfo
	if m.FullName() != "" {
		t.Fatal("nil method info must have an empty name")
	}
	m = &MethodInfo{ServiceName: "Arith", MethodName: "Add"}
	if m.FullName() != "Arith.Add" {
		t.Fatalf("unexpected method name %s", m.FullName())
	}
}
