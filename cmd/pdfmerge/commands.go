package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/preview"
	"github.com/wudi/pdfmerge/session"
)

const shellHelp = `commands:
  list               show the files in merge order
  up N | down N      move file N one place
  rm N               remove file N
  clear              remove every file and the merged PDF
  merge              merge the files in order
  save [path]        write the merged PDF
  preview            print a preview link (needs -preview)
  status             show the current status message
  quit`

// commandShell maps typed commands to session actions.
type commandShell struct {
	sess        *session.Session
	pres        *presenter
	out         io.Writer
	output      string
	previewBase string
}

func (c *commandShell) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(c.out, `type "help" for commands`)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if quit := c.exec(ctx, sc.Text()); quit {
			return nil
		}
	}
	return sc.Err()
}

// exec runs one command line and reports whether the shell should stop.
// Every outcome is reported through the presenter.
func (c *commandShell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, shellHelp)
	case "list", "ls":
		view := c.sess.Files().Files()
		c.pres.CollectionChanged(view, c.sess.Files().TotalSizeBytes())
	case "up", "down", "rm":
		n, ok := c.index(args)
		if !ok {
			return false
		}
		var actErr error
		switch cmd {
		case "up":
			actErr = c.sess.MoveFile(n, collection.Up)
		case "down":
			actErr = c.sess.MoveFile(n, collection.Down)
		default:
			actErr = c.sess.RemoveFile(n)
		}
		if actErr != nil {
			c.pres.say(statusError, "No file %d.", n+1)
		}
	case "clear":
		c.sess.ClearAll()
	case "merge":
		_, err := c.sess.MergeAll(ctx)
		if err != nil && session.IsUserError(err) {
			c.pres.say(statusError, "%s", userMessage(err))
		}
	case "save":
		path := c.output
		if len(args) > 0 {
			path = args[0]
		}
		written, err := saveArtifact(c.sess, path)
		switch {
		case session.IsUserError(err):
			c.pres.say(statusError, "%s", userMessage(err))
		case err != nil:
			c.pres.say(statusError, "Download failed: %v", err)
		default:
			c.pres.say(statusSuccess, "Saved %s", written)
		}
	case "preview":
		if c.previewBase == "" {
			c.pres.say(statusError, "Start with -preview to get preview links.")
			return false
		}
		h, err := c.sess.RequestPreview()
		if err != nil {
			c.pres.say(statusError, "%s", userMessage(err))
			return false
		}
		fmt.Fprintln(c.out, preview.URL(c.previewBase, h))
	case "status":
		if s := c.pres.Status(); s != "" {
			fmt.Fprintln(c.out, s)
		}
	case "quit", "exit", "q":
		return true
	default:
		c.pres.say(statusError, "Unknown command %q; type help.", cmd)
	}
	return false
}

// index parses a 1-based file number into a collection index.
func (c *commandShell) index(args []string) (int, bool) {
	if len(args) != 1 {
		c.pres.say(statusError, "Give one file number.")
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		c.pres.say(statusError, "%q is not a file number.", args[0])
		return 0, false
	}
	return n - 1, true
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, merge.ErrInsufficientInputs):
		return "Please select at least 2 PDF files to merge."
	case errors.Is(err, merge.ErrAlreadyInProgress):
		return "A merge is already running."
	case errors.Is(err, artifact.ErrNoArtifact):
		return "No merged PDF available. Please merge PDFs first."
	}
	return err.Error()
}
