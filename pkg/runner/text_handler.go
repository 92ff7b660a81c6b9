package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/aretw0/espalier/pkg/domain"
)

// TextHandler implements the line-oriented interactive interface. Lines
// starting with a colon are commands (:undo, :redo, :labels, :quit); any
// other line is an event, with the first token as the type and the rest as
// the payload, decoded as JSON when it parses.
type TextHandler struct {
	Writer   io.Writer
	Renderer ContentRenderer
	Prompt   string

	source      io.Reader
	interactive bool
	reader      *bufio.Reader

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption configures a TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextRenderer transforms payloads before printing (e.g. markdown to
// ANSI).
func WithTextRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithPrompt overrides the input prompt. An empty prompt suits piped input.
func WithPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = prompt
	}
}

// NewTextHandler creates a handler for standard text IO. A nil reader or
// writer falls back to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Writer: w,
		Prompt: "> ",
		source: r,
	}

	// A terminal read can be interrupted by a signal without the stream
	// being finished; only a non-terminal source treats EOF as final.
	if f, ok := r.(*os.File); ok {
		h.interactive = term.IsTerminal(int(f.Fd()))
	}
	h.reader = bufio.NewReader(h.source)

	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump moves lines from the blocking reader onto a channel, so Input can
// race reads against context cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.reader.ReadString('\n')

		if text != "" {
			h.inputChan <- inputResult{text: text}
		}

		if err != nil {
			if err == io.EOF {
				if h.interactive {
					// A signal interrupted the read; the terminal is
					// still usable, so keep the channel open for the
					// next read. The pause avoids a busy loop while
					// the signal is being handled.
					h.inputChan <- inputResult{err: io.EOF}
					time.Sleep(50 * time.Millisecond)
					continue
				}
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Output(ctx context.Context, payload any) error {
	output := fmt.Sprint(payload)
	if h.Renderer != nil {
		if rendered, err := h.Renderer(output); err == nil {
			output = rendered
		}
	}
	_, err := fmt.Fprintln(h.Writer, strings.TrimSpace(output))
	return err
}

func (h *TextHandler) Input(ctx context.Context) (Request, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		default:
			fmt.Fprint(h.Writer, h.Prompt)
		}

		line, err := h.readLine(ctx)
		if err != nil {
			return Request{}, err
		}

		clean, err := SanitizeInput(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
			continue
		}
		if clean == "" {
			continue
		}
		return parseTextRequest(clean), nil
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[system] %s\n", msg)
	return err
}

func (h *TextHandler) Status(ctx context.Context, status Status) error {
	_, err := fmt.Fprintf(h.Writer, "entries: %v (cursor %d)\n", status.Labels, status.Cursor)
	return err
}

func (h *TextHandler) Confirm(ctx context.Context, prompt string) (bool, error) {
	h.initPump()

	fmt.Fprintf(h.Writer, "%s [y/N]: ", prompt)
	line, err := h.readLine(ctx)
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (h *TextHandler) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-h.inputChan:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return res.text, nil
	}
}

// parseTextRequest turns one non-empty line into a request.
func parseTextRequest(line string) Request {
	if rest, ok := strings.CutPrefix(line, ":"); ok {
		return Request{Command: Command(rest)}
	}

	eventType, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Request{Event: domain.NewEvent(eventType, nil)}
	}

	var payload any
	if err := json.Unmarshal([]byte(rest), &payload); err != nil {
		payload = rest
	}
	return Request{Event: domain.NewEvent(eventType, payload)}
}
