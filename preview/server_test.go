package preview_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/preview"
)

var payload = []byte("%PDF-1.7\n% merged payload\n%%EOF\n")

func newServer(t *testing.T) (*artifact.Lifecycle, *httptest.Server) {
	t.Helper()
	l := artifact.NewLifecycle(artifact.Config{DownloadTTL: time.Minute, PreviewTTL: time.Minute})
	ts := httptest.NewServer(preview.New(preview.Config{}, l).Handler())
	t.Cleanup(ts.Close)
	return l, ts
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func links(t *testing.T, body io.Reader) []string {
	t.Helper()
	doc, err := html.Parse(body)
	require.NoError(t, err)
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					out = append(out, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func TestStatusPage(t *testing.T) {
	l, ts := newServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Nothing merged yet")

	a := artifact.New(payload, 5, time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	l.Store(a)
	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	got := links(t, resp.Body)
	assert.Equal(t, []string{"/preview", "/download"}, got)
	assert.Zero(t, l.Outstanding(), "status page must not issue handles")
}

func TestStatusPageSummary(t *testing.T) {
	l, ts := newServer(t)
	l.Store(artifact.New(make([]byte, 3*1024*1024/2), 12, time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "Pages: 12")
	assert.Contains(t, string(body), "1.50 MB")
	assert.Contains(t, string(body), "merged-pdf-2024-03-09T14-05-07.pdf")
}

func TestPreviewIsInline(t *testing.T) {
	l, ts := newServer(t)
	a := artifact.New(payload, 1, time.Now())
	l.Store(a)

	resp, err := http.Get(ts.URL + "/preview")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "inline", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, a.ETag(), resp.Header.Get("ETag"))
	assert.Equal(t, 1, l.Outstanding(), "preview handle lives until its TTL")
}

func TestDownloadIsSingleUse(t *testing.T) {
	l, ts := newServer(t)
	a := artifact.New(payload, 1, time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	l.Store(a)
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(ts.URL + "/download")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/artifacts/"))

	resp, err = client.Get(ts.URL + loc)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, payload, body)
	assert.Equal(t, `attachment; filename="merged-pdf-2024-03-09T14-05-07.pdf"`, resp.Header.Get("Content-Disposition"))

	resp, err = client.Get(ts.URL + loc)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Zero(t, l.Outstanding())
}

func TestUnknownAndRevokedTokens(t *testing.T) {
	l, ts := newServer(t)
	l.Store(artifact.New(payload, 1, time.Now()))
	h, err := l.Expose(artifact.PurposePreview)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/artifacts/not-a-token")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// A new artifact invalidates handles to the old one.
	l.Store(artifact.New([]byte("%PDF-1.7 other"), 1, time.Now()))
	resp, err = http.Get(preview.URL(ts.URL, h))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestIssueWithoutArtifact(t *testing.T) {
	_, ts := newServer(t)
	resp, err := http.Get(ts.URL + "/download")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	l := artifact.NewLifecycle(artifact.Config{})
	srv := preview.New(preview.Config{MaxConns: 2}, l)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestFormatMB(t *testing.T) {
	assert.Equal(t, "0.00 MB", preview.FormatMB(0))
	assert.Equal(t, "1.00 MB", preview.FormatMB(1024*1024))
	assert.Equal(t, "2.35 MB", preview.FormatMB(2464153))
}

func TestDownloadSurvivesHeadAndRange(t *testing.T) {
	l, ts := newServer(t)
	l.Store(artifact.New(payload, 1, time.Now()))
	h, err := l.Expose(artifact.PurposeDownload)
	require.NoError(t, err)
	url := preview.URL(ts.URL, h)

	resp, err := http.Head(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-7")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, 1, l.Outstanding())

	resp, err = http.Get(url)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)

	resp, err = http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}
