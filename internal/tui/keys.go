package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the bindings of the presentation screen.
type keyMap struct {
	Start   key.Binding
	Success key.Binding
	Cancel  key.Binding
	Reinit  key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "start trial"),
		),
		Success: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "end: success"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "end: failed"),
		),
		Reinit: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "new trial"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Success, k.Cancel, k.Reinit, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
