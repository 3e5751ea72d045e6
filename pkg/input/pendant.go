package input

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gwillem/so101/pkg/teleop"
)

// DefaultDebounce ignores repeated presses of one button within this window.
const DefaultDebounce = 30 * time.Millisecond

// ErrPendantUnsupported is returned by OpenPendant where GPIO is unavailable.
var ErrPendantUnsupported = errors.New("gpio pendant not supported on this platform")

// Button is a pendant push button.
type Button int

const (
	ButtonNext Button = iota
	ButtonPrevious
	ButtonJogPositive
	ButtonJogNegative
	ButtonZero
	ButtonRelease
	ButtonSlow
)

var buttonNames = []string{"next", "prev", "jog+", "jog-", "zero", "release", "slow"}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

// held reports whether the button is read as a level rather than a press.
func (b Button) held() bool {
	return b == ButtonRelease || b == ButtonSlow
}

// ParseButton maps a button name (next, prev, jog+, jog-, zero, release,
// slow) to a Button.
func ParseButton(name string) (Button, error) {
	i := slices.Index(buttonNames, strings.ToLower(strings.TrimSpace(name)))
	if i < 0 {
		return 0, fmt.Errorf("unknown pendant button %q (want one of %s)", name, strings.Join(buttonNames, ", "))
	}
	return Button(i), nil
}

// ParseLines converts a name to line offset mapping, as given on the command
// line, into a button layout. Two buttons may not share a line.
func ParseLines(lines map[string]int) (map[Button]int, error) {
	out := make(map[Button]int, len(lines))
	used := make(map[int]Button, len(lines))
	for name, offset := range lines {
		b, err := ParseButton(name)
		if err != nil {
			return nil, err
		}
		if offset < 0 {
			return nil, fmt.Errorf("pendant button %s: negative line offset %d", b, offset)
		}
		if other, ok := used[offset]; ok {
			return nil, fmt.Errorf("pendant buttons %s and %s share line %d", other, b, offset)
		}
		used[offset] = b
		out[b] = offset
	}
	return out, nil
}

func set(in *teleop.Input, b Button, v bool) {
	switch b {
	case ButtonNext:
		in.SelectNext = v
	case ButtonPrevious:
		in.SelectPrevious = v
	case ButtonJogPositive:
		in.JogPositive = v
	case ButtonJogNegative:
		in.JogNegative = v
	case ButtonZero:
		in.GoToZero = v
	case ButtonRelease:
		in.Release = v
	case ButtonSlow:
		in.Slow = v
	}
}

// presses latches button presses from edge events until the next poll.
type presses struct {
	debounce time.Duration

	mu   sync.Mutex
	in   teleop.Input
	last map[Button]time.Time
}

func newPresses(debounce time.Duration) *presses {
	return &presses{debounce: debounce, last: make(map[Button]time.Time)}
}

func (p *presses) press(b Button, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.last[b]; ok && at.Sub(last) < p.debounce {
		return
	}
	p.last[b] = at
	set(&p.in, b, true)
}

func (p *presses) take() teleop.Input {
	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.in
	p.in = teleop.Input{}
	return in
}
