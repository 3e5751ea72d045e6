//go:build !linux

package input

import "github.com/gwillem/so101/pkg/teleop"

// Pendant is unavailable outside linux.
type Pendant struct{}

// OpenPendant always fails outside linux.
func OpenPendant(chipName string, layout map[Button]int) (*Pendant, error) {
	return nil, ErrPendantUnsupported
}

func (p *Pendant) Poll() teleop.Input { return teleop.Input{} }

func (p *Pendant) Close() error { return nil }
