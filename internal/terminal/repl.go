package terminal

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/wolfman30/citas/internal/booking"
	"github.com/wolfman30/citas/pkg/logging"
)

// Dispatcher runs booking commands.
type Dispatcher interface {
	Do(ctx context.Context, cmd booking.Command) (booking.View, error)
	Resume(ctx context.Context, id string) (booking.View, error)
}

// REPL reads commands line by line and prints each resulting view.
type REPL struct {
	in         io.Reader
	renderer   *Renderer
	dispatcher Dispatcher
	logger     *logging.Logger
	prompt     string
}

// NewREPL wires a read loop over in.
func NewREPL(in io.Reader, renderer *Renderer, d Dispatcher, logger *logging.Logger) *REPL {
	if logger == nil {
		logger = logging.Default()
	}
	return &REPL{in: in, renderer: renderer, dispatcher: d, logger: logger, prompt: "citas> "}
}

// Run reads until EOF, quit, or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	r.renderer.Printf("%s", r.prompt)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if done := r.handle(ctx, strings.TrimSpace(line)); done {
				return nil
			}
			r.renderer.Printf("%s", r.prompt)
		}
	}
}

func (r *REPL) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help", "?":
		r.renderer.Printf("%s\n", Help)
		return false
	case "resume":
		if len(fields) != 2 {
			r.renderer.Printf("usage: resume <session id>\n")
			return false
		}
		v, err := r.dispatcher.Resume(ctx, fields[1])
		r.renderer.Render(v, err)
		return false
	}

	cmd, err := Parse(line)
	if err != nil {
		var usage *UsageError
		if errors.As(err, &usage) {
			r.renderer.Printf("%s\n", usage.Error())
			return false
		}
		r.logger.Debug("parse failed", "line", line, "error", err)
		return false
	}
	v, err := r.dispatcher.Do(ctx, cmd)
	if errors.Is(err, booking.ErrInFlight) {
		r.renderer.Printf("busy: %s already running\n", cmd.Control())
		return false
	}
	r.renderer.Render(v, err)
	return false
}
