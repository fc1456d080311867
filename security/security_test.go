package security

import (
	"errors"
	"testing"

	"github.com/wudi/pdfmerge/ir/raw"
)

func TestCheckTrailer(t *testing.T) {
	plain := raw.Dict()
	plain.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	if err := CheckTrailer(plain); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encDict := raw.Dict()
	encDict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Encrypt"), encDict)
	if err := CheckTrailer(enc); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}

	byRef := raw.Dict()
	byRef.Set(raw.NameLiteral("Encrypt"), raw.Ref(9, 0))
	if err := CheckTrailer(byRef); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted for indirect /Encrypt, got %v", err)
	}

	if err := CheckTrailer(nil); err != nil {
		t.Fatalf("nil trailer should pass, got %v", err)
	}
}

func TestLimitsWithDefaults(t *testing.T) {
	l := Limits{MaxPages: 3}.WithDefaults()
	if l.MaxPages != 3 {
		t.Fatalf("explicit value overwritten")
	}
	if l.MaxXRefDepth != DefaultLimits().MaxXRefDepth {
		t.Fatalf("zero field not defaulted")
	}
}

func TestDefaultStreamLimitAdmitsLargeImages(t *testing.T) {
	if got := DefaultLimits().MaxStreamLength; got < 1<<30 {
		t.Fatalf("default stream limit %d would reject ordinary scanned pages", got)
	}
}
