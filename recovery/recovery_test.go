package recovery

import (
	"errors"
	"strings"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	if got := NewStrictStrategy().OnError(nil, errors.New("boom"), Location{}); got != ActionFail {
		t.Fatalf("expected ActionFail, got %v", got)
	}
}

func TestLenientStrategyRecordsAndDrains(t *testing.T) {
	s := NewLenientStrategy()
	if got := s.OnError(nil, errors.New("bad xref"), Location{Component: "xref", ByteOffset: 42}); got != ActionWarn {
		t.Fatalf("expected ActionWarn, got %v", got)
	}
	s.OnError(nil, errors.New("bad stream"), Location{Component: "scanner:stream", ObjectNum: 3})
	errs := s.Drain()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "xref @42") {
		t.Fatalf("location missing from %q", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "obj 3 0") {
		t.Fatalf("object location missing from %q", errs[1])
	}
	if len(s.Drain()) != 0 {
		t.Fatalf("drain should reset")
	}
}
