package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/catactl/catactl/internal/backup"
	"golang.org/x/term"
)

type interactiveCtxKeyType struct{}

var interactiveCtxKey = interactiveCtxKeyType{}

func isInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func withInteractive(ctx context.Context, interactive bool) context.Context {
	return context.WithValue(ctx, interactiveCtxKey, interactive)
}

func isInteractive(ctx context.Context) bool {
	interactive, ok := ctx.Value(interactiveCtxKey).(bool)
	if !ok {
		return false
	}
	return interactive
}

// progressPrinter draws one character per finished chunk: "." on success and
// "X" on failure.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) Report(progress backup.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark := "."
	if progress.Err != nil {
		mark = "X"
	}
	fmt.Fprint(p.w, mark)
	p.printed = true
}

// Done terminates the progress line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed {
		fmt.Fprintln(p.w)
		p.printed = false
	}
}
