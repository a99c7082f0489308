package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Prev    key.Binding
	Next    key.Binding
	Up      key.Binding
	Down    key.Binding
	Choose  key.Binding
	Save    key.Binding
	Review  key.Binding
	Jump    key.Binding
	Finish  key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Prev:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev")),
		Next:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "option up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "option down")),
		Choose:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space/1-9", "select")),
		Save:    key.NewBinding(key.WithKeys("enter", "s"), key.WithHelp("enter", "save & next")),
		Review:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "mark for review")),
		Jump:    key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to")),
		Finish:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")),
		Confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "cancel")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) examHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Up, k.Down, k.Choose, k.Save, k.Review, k.Jump, k.Finish, k.Quit}
}
