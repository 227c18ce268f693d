package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// LineReader hands out lines from an input stream to whoever asks next. A
// single goroutine owns the scanner, so the REPL and the confirmation prompt
// can share stdin, and a read can be abandoned when its context ends.
type LineReader struct {
	in    io.Reader
	once  sync.Once
	lines chan string
	mu    sync.Mutex
	err   error
}

// NewLineReader wraps in. Reading starts on the first ReadLine.
func NewLineReader(in io.Reader) *LineReader {
	return &LineReader{in: in, lines: make(chan string)}
}

func (l *LineReader) start() {
	go func() {
		scanner := bufio.NewScanner(l.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			l.lines <- scanner.Text()
		}
		l.mu.Lock()
		l.err = scanner.Err()
		l.mu.Unlock()
		close(l.lines)
	}()
}

// ReadLine waits for the next line. It returns io.EOF once input is
// exhausted and ctx.Err() if ctx ends first; an abandoned line stays queued
// for the next caller.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	l.once.Do(l.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-l.lines:
		if !ok {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.err != nil {
				return "", l.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// TerminalPrompt asks on a text terminal.
//
//	y / yes  allow once
//	Y / YES  allow and remember
//	n / no   deny
//
// Anything else, end of input, or the deadline passing cancels.
type TerminalPrompt struct {
	lines *LineReader
	out   io.Writer
}

// NewTerminalPrompt creates a prompt reading answers from lines and writing
// questions to out.
func NewTerminalPrompt(lines *LineReader, out io.Writer) *TerminalPrompt {
	return &TerminalPrompt{lines: lines, out: out}
}

func (p *TerminalPrompt) Confirm(ctx context.Context, req Request) Result {
	desc := req.Description
	if desc == "" {
		desc = DefaultDescription(req.Action, req.Target)
	}
	fmt.Fprintf(p.out, "\n[confirmation required]\n  action: %s\n  target: %s\n  %s\n", req.Action, req.Target, desc)

	if req.RequiresPassword {
		fmt.Fprintf(p.out, "Type %s to continue: ", PasswordToken)
		line, err := p.lines.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(p.out)
			return Cancelled()
		}
		if strings.TrimSpace(line) != PasswordToken {
			fmt.Fprintln(p.out, "Confirmation token mismatch.")
			return Denied()
		}
	}

	fmt.Fprint(p.out, "Allow? [y]es once, [Y]ES always, [n]o: ")
	line, err := p.lines.ReadLine(ctx)
	if err != nil {
		fmt.Fprintln(p.out)
		return Cancelled()
	}
	return parseAnswer(line)
}

func parseAnswer(line string) Result {
	answer := strings.TrimSpace(line)
	switch answer {
	case "Y", "YES":
		return AllowedPermanent()
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return AllowedOnce()
	case "n", "no":
		return Denied()
	}
	return Cancelled()
}
