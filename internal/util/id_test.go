package util

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("ws")
	if !strings.HasPrefix(id, "ws_") {
		t.Fatalf("expected ws_ prefix, got %q", id)
	}
	if NewID("ws") == id {
		t.Fatal("ids must be unique")
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("empty prefix must not add a separator")
	}
}

func TestEmployeeCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{12}$`)
	for i := 0; i < 20; i++ {
		if code := EmployeeCode(); !pattern.MatchString(code) {
			t.Fatalf("unexpected employee code %q", code)
		}
	}
}
