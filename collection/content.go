package collection

import (
	"context"
	"fmt"
	"os"
)

// Content resolves a pending file's bytes. Resolution may be deferred until the
// merge reads the file.
type Content interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// Bytes is content already held in memory.
type Bytes []byte

func (b Bytes) Bytes(context.Context) ([]byte, error) { return b, nil }

// File is content read from disk when the merge reaches it.
type File string

func (f File) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", string(f), err)
	}
	return data, nil
}

// head returns up to n leading bytes of c for type sniffing.
func head(ctx context.Context, c Content, n int) []byte {
	if f, ok := c.(File); ok {
		fh, err := os.Open(string(f))
		if err != nil {
			return nil
		}
		defer fh.Close()
		buf := make([]byte, n)
		m, _ := fh.Read(buf)
		return buf[:m]
	}
	data, err := c.Bytes(ctx)
	if err != nil {
		return nil
	}
	if len(data) > n {
		data = data[:n]
	}
	return data
}
