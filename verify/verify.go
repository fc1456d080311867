// Package verify re-reads merged output with pdfcpu, an independent PDF
// implementation, and checks the page count.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrPageCountMismatch = errors.New("verify: page count mismatch")

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

// PageCounter implements merge.Verifier.
type PageCounter struct {
	// Strict selects pdfcpu's strict validation mode; relaxed is the default.
	Strict bool
}

func (p PageCounter) Verify(ctx context.Context, payload []byte, wantPages int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if p.Strict {
		conf.ValidationMode = model.ValidationStrict
	}
	got, err := api.PageCount(bytes.NewReader(payload), conf)
	if err != nil {
		return fmt.Errorf("verify: read merged output: %w", err)
	}
	if got != wantPages {
		return fmt.Errorf("%w: pdfcpu counts %d, merge produced %d", ErrPageCountMismatch, got, wantPages)
	}
	return nil
}
