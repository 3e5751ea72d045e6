//go:build linux

package input

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"

	"github.com/gwillem/so101/pkg/teleop"
)

// Pendant reads push buttons wired between GPIO lines and ground. Lines use
// the internal pull-up, so a pressed button reads low.
type Pendant struct {
	chip    *gpiocdev.Chip
	lines   []*gpiocdev.Line
	levels  map[Button]*gpiocdev.Line
	presses *presses

	mu   sync.Mutex
	held map[Button]bool
}

// OpenPendant requests the given lines on a GPIO chip such as "gpiochip0".
func OpenPendant(chipName string, layout map[Button]int) (*Pendant, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	p := &Pendant{
		chip:    chip,
		levels:  make(map[Button]*gpiocdev.Line),
		presses: newPresses(DefaultDebounce),
		held:    make(map[Button]bool),
	}

	for b, offset := range layout {
		var line *gpiocdev.Line
		if b.held() {
			line, err = chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		} else {
			line, err = chip.RequestLine(offset,
				gpiocdev.WithPullUp,
				gpiocdev.WithFallingEdge,
				gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
					p.presses.press(b, time.Now())
				}),
			)
		}
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request gpio line %d for %s: %w", offset, b, err)
		}
		p.lines = append(p.lines, line)
		if b.held() {
			p.levels[b] = line
		}
	}
	return p, nil
}

// Poll implements teleop.Source. A level line that cannot be read keeps its
// previous value.
func (p *Pendant) Poll() teleop.Input {
	in := p.presses.take()

	p.mu.Lock()
	defer p.mu.Unlock()
	for b, line := range p.levels {
		if v, err := line.Value(); err == nil {
			p.held[b] = v == 0
		}
		set(&in, b, p.held[b])
	}
	return in
}

// Close releases all lines and the chip.
func (p *Pendant) Close() error {
	var errs error
	for _, line := range p.lines {
		errs = multierr.Append(errs, line.Close())
	}
	p.lines = nil
	return multierr.Append(errs, p.chip.Close())
}
