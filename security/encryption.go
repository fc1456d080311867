package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

// ErrEncrypted reports an input protected by a security handler. Merging never
// decrypts: a password-protected source is treated like an unreadable one.
var ErrEncrypted = errors.New("document is encrypted")

// CheckTrailer returns ErrEncrypted when the trailer carries an /Encrypt entry.
func CheckTrailer(trailer *raw.DictObj) error {
	enc, ok := trailer.Get(raw.NameLiteral("Encrypt"))
	if !ok {
		return nil
	}
	if _, isNull := enc.(raw.NullObj); isNull {
		return nil
	}
	filter := "Standard"
	if d, ok := enc.(*raw.DictObj); ok {
		if name, ok := d.Name("Filter"); ok {
			filter = name
		}
	}
	return fmt.Errorf("%w (filter %s)", ErrEncrypted, filter)
}
