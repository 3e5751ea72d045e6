// Package input turns operator devices into teleoperation intents.
package input

import (
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/so101/pkg/teleop"
)

// KeyMap binds keyboard keys to intents. Terminals report key presses but
// not releases, so Release and Slow toggle instead of being held.
type KeyMap struct {
	Next        key.Binding
	Previous    key.Binding
	JogPositive key.Binding
	JogNegative key.Binding
	Zero        key.Binding
	Release     key.Binding
	Slow        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next:        key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab/→", "next joint")),
		Previous:    key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab/←", "prev joint")),
		JogPositive: key.NewBinding(key.WithKeys("up", "k", "+"), key.WithHelp("↑/k", "jog +")),
		JogNegative: key.NewBinding(key.WithKeys("down", "j", "-"), key.WithHelp("↓/j", "jog -")),
		Zero:        key.NewBinding(key.WithKeys("0", "z"), key.WithHelp("0", "go to zero")),
		Release:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "release torque")),
		Slow:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "slow")),
		Quit:        key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.JogPositive, k.JogNegative, k.Zero, k.Release, k.Slow, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Previous},
		{k.JogPositive, k.JogNegative, k.Zero},
		{k.Release, k.Slow, k.Quit},
	}
}

// Keys collects key presses between two polls. It is fed from the terminal
// UI goroutine and polled from the control loop.
type Keys struct {
	keymap KeyMap

	mu      sync.Mutex
	pending teleop.Input
	release bool
	slow    bool
}

// NewKeys returns a key source using km.
func NewKeys(km KeyMap) *Keys {
	return &Keys{keymap: km}
}

// Handle records the intent bound to msg and reports whether msg was one.
func (k *Keys) Handle(msg tea.KeyMsg) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch {
	case key.Matches(msg, k.keymap.Next):
		k.pending.SelectNext = true
	case key.Matches(msg, k.keymap.Previous):
		k.pending.SelectPrevious = true
	case key.Matches(msg, k.keymap.JogPositive):
		k.pending.JogPositive = true
	case key.Matches(msg, k.keymap.JogNegative):
		k.pending.JogNegative = true
	case key.Matches(msg, k.keymap.Zero):
		k.pending.GoToZero = true
	case key.Matches(msg, k.keymap.Release):
		k.release = !k.release
	case key.Matches(msg, k.keymap.Slow):
		k.slow = !k.slow
	default:
		return false
	}
	return true
}

// Poll implements teleop.Source. Presses are consumed; toggles persist.
func (k *Keys) Poll() teleop.Input {
	k.mu.Lock()
	defer k.mu.Unlock()

	in := k.pending
	in.Release = k.release
	in.Slow = k.slow
	k.pending = teleop.Input{}
	return in
}
