package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// configModel shows the stored raw configuration and edits it in place.
type configModel struct {
	raw     string
	source  string
	editing bool
	input   textinput.Model
	width   int
	height  int
}

func newConfigModel() configModel {
	ti := textinput.New()
	ti.CharLimit = 8192
	ti.Prompt = "> "
	ti.Placeholder = "vless://... | vmess://... | trojan://... | ss://... | {xray json}"
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorPurple)
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorFg)

	return configModel{input: ti}
}

func (cm *configModel) setSize(w, h int) {
	cm.width = w
	cm.height = h
	cm.input.Width = w - 6
}

func (cm *configModel) setRaw(raw, source string) {
	cm.raw = raw
	cm.source = source
}

func (cm *configModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	if cm.editing {
		return cm.updateEditing(msg, root)
	}

	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Edit) {
		cm.editing = true
		cm.input.SetValue(cm.raw)
		cm.input.CursorEnd()
		cm.input.Focus()
		return textinput.Blink
	}
	return nil
}

func (cm *configModel) updateEditing(msg tea.Msg, root *Model) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Back):
			cm.editing = false
			cm.input.Blur()
			return nil
		case msg.String() == "enter":
			cm.editing = false
			cm.input.Blur()
			return saveRawConfig(root.backend, cm.input.Value())
		}
	}

	var cmd tea.Cmd
	cm.input, cmd = cm.input.Update(msg)
	return cmd
}

func (cm *configModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Raw Configuration"))
	b.WriteString("\n")

	if cm.editing {
		b.WriteString(cm.input.View() + "\n\n")
		b.WriteString(dimStyle.Render("  enter to save, esc to cancel") + "\n")
		return forceHeight(b.String(), cm.width, cm.height)
	}

	if strings.TrimSpace(cm.raw) == "" {
		b.WriteString(dimStyle.Render("  Nothing stored. The probe stays idle until a configuration is set.") + "\n\n")
	} else {
		if cm.source != "" {
			b.WriteString(cardLabelStyle.Render("Source:") + " " + cardValueStyle.Render(cm.source) + "\n\n")
		}
		w := cm.width - 6
		if w < 30 {
			w = 30
		}
		b.WriteString(cardStyle.Width(w).Render(cm.raw) + "\n")
	}
	b.WriteString(dimStyle.Render("  press 'e' to edit"))

	return forceHeight(b.String(), cm.width, cm.height)
}
