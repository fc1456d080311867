package parser_test

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"
)

func pad10(n int) string { return fmt.Sprintf("%010d", n) }

func itoa(n int) string { return strconv.Itoa(n) }

// fixStartXRef rewrites the trailing startxref value to the last "xref" keyword.
func fixStartXRef(t *testing.T, data []byte) []byte {
	t.Helper()
	xrefAt := bytes.LastIndex(data, []byte("\nxref\n")) + 1
	sx := bytes.LastIndex(data, []byte("startxref"))
	if xrefAt <= 0 || sx < 0 {
		t.Fatalf("fixture lacks xref/startxref")
	}
	out := append([]byte(nil), data[:sx]...)
	return append(out, []byte(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefAt))...)
}
