package preview

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfmerge/artifact"
)

// statusMarkdown summarizes the held artifact. Links point at the issuing
// endpoints, never at tokens.
func statusMarkdown(a *artifact.Artifact) []byte {
	var b strings.Builder
	b.WriteString("# pdfmerge\n\n")
	if a == nil {
		b.WriteString("Nothing merged yet.\n")
		return []byte(b.String())
	}
	b.WriteString("PDFs merged successfully!\n\n")
	fmt.Fprintf(&b, "- Pages: %d\n", a.PageCount)
	fmt.Fprintf(&b, "- Size: %s\n", FormatMB(a.Size))
	fmt.Fprintf(&b, "- Name: `%s`\n", a.SuggestedName)
	fmt.Fprintf(&b, "- Merged: %s\n\n", a.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("[Preview](/preview) | [Download](/download)\n")
	return []byte(b.String())
}

// FormatMB renders a byte count as megabytes with two decimals.
func FormatMB(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
}
