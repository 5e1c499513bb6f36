package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readTerminalPassword is a test seam for term.ReadPassword.
var readTerminalPassword = term.ReadPassword

type lineResult struct {
	line string
	err  error
}

// lineReader reads one line at a time without blocking cancellation. A read
// abandoned because ctx ended is kept and handed to the next caller.
type lineReader struct {
	r       *bufio.Reader
	pending chan lineResult
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its line ending. A final line
// without a newline is returned before io.EOF.
func (l *lineReader) ReadLine(ctx context.Context) (string, error) {
	if l.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := l.r.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
		l.pending = ch
	}

	select {
	case res := <-l.pending:
		l.pending = nil
		if res.err != nil {
			if errors.Is(res.err, io.EOF) && len(res.line) > 0 {
				return strings.TrimRight(res.line, "\r\n"), nil
			}
			return "", res.err
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// GetSimpleText prints prompt to w and reads a single trimmed line.
//
//	Prompt text
//	> _
func GetSimpleText(ctx context.Context, in *lineReader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := in.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetMultiline reads lines until an empty one and joins them with '\n'.
func GetMultiline(ctx context.Context, in *lineReader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}

	var lines []string
	for {
		line, err := in.ReadLine(ctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// passwordFunc reads a secret after the prompt has been printed.
type passwordFunc func(ctx context.Context) ([]byte, error)

// terminalPassword reads without echo when stdin is a terminal and falls
// back to a plain line otherwise, so piped input still works.
func terminalPassword(in *lineReader) passwordFunc {
	return func(ctx context.Context) ([]byte, error) {
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			return readTerminalPassword(fd)
		}
		return linePassword(in)(ctx)
	}
}

func linePassword(in *lineReader) passwordFunc {
	return func(ctx context.Context) ([]byte, error) {
		line, err := in.ReadLine(ctx)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}
}

// GetPassword prints prompt to w and reads a password with read. A newline
// is printed afterwards to keep the UI tidy.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(ctx context.Context, read passwordFunc, prompt string, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := read(ctx)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}
