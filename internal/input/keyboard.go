package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

// KeyInterrupt is Ctrl-C as delivered by a terminal in raw mode
const KeyInterrupt Key = 0x03

// Keyboard reads key presses from a terminal or any byte stream. A reader
// goroutine forwards each decoded character; the tick loop collects them
// with Drain.
type Keyboard struct {
	src      io.Reader
	fd       int
	oldState *term.State
	keys     chan Key
	done     chan struct{}
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// NewKeyboard starts reading keys from src. When src is a terminal it is
// switched to raw mode so keys arrive without waiting for Enter; Close
// restores it.
func NewKeyboard(src io.Reader, logger *slog.Logger) (*Keyboard, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	kb := &Keyboard{
		src:    src,
		fd:     -1,
		keys:   make(chan Key, 64),
		done:   make(chan struct{}),
		logger: logger,
	}

	if f, ok := src.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, fmt.Errorf("failed to enable raw mode: %w", err)
		}
		kb.fd = int(f.Fd())
		kb.oldState = state
		logger.Debug("keyboard in raw mode", "fd", kb.fd)
	}

	go kb.read()

	return kb, nil
}

func (kb *Keyboard) read() {
	reader := bufio.NewReader(kb.src)
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				kb.logger.Error("error reading keyboard", "error", err)
			}
			close(kb.done)
			return
		}
		if r == '\r' || r == '\n' {
			continue
		}
		key := Key(r)
		if r != rune(KeyInterrupt) {
			key = ParseKey(string(r))
		}
		select {
		case kb.keys <- key:
		default:
			kb.logger.Warn("keyboard buffer full, dropping key", "key", key.String())
		}
	}
}

// Drain returns all keys pressed since the previous call without blocking
func (kb *Keyboard) Drain() []Key {
	var keys []Key
	for {
		select {
		case k := <-kb.keys:
			keys = append(keys, k)
		default:
			return keys
		}
	}
}

// Done is closed once the input stream has ended
func (kb *Keyboard) Done() <-chan struct{} {
	return kb.done
}

// Close restores the terminal state
func (kb *Keyboard) Close() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.closed {
		return nil
	}
	kb.closed = true

	if kb.oldState != nil {
		if err := term.Restore(kb.fd, kb.oldState); err != nil {
			return fmt.Errorf("failed to restore terminal: %w", err)
		}
	}
	return nil
}
