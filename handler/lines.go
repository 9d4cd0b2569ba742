package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"chat-widget/internal/domain"
	"chat-widget/internal/usecase"
	"chat-widget/internal/view"
)

// Printer writes chat box additions to an output stream, one line per
// message. Loading placeholders are skipped because a stream cannot take
// them back.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	err error
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Observe is a view.ChatBox observer.
func (p *Printer) Observe(c view.Change) {
	if c.Removed || c.Node == nil {
		return
	}
	msg := c.Node.Message()
	if msg.StyleClass == domain.StyleLoading {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	if _, err := fmt.Fprintln(p.out, view.Line(msg)); err != nil {
		p.err = err
	}
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// RunLines treats every line read from in as text typed into the input
// followed by Enter. Messages are printed to out as they are rendered. It
// returns at EOF or when ctx is done.
func RunLines(ctx context.Context, widget *usecase.Widget, in io.Reader, out io.Writer) error {
	printer := NewPrinter(out)
	widget.ChatBox().SetObserver(printer.Observe)
	defer widget.ChatBox().SetObserver(nil)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, ok := widget.SendText(ctx, scanner.Text())
		if ok && res.Err != nil {
			log.Debug().Err(res.Err).Msg("line send failed")
		}
		if err := printer.Err(); err != nil {
			return fmt.Errorf("handler: write output: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("handler: read input: %w", err)
	}
	return nil
}
