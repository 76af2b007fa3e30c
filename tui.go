package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/manningwu07/seq2seq/store"
)

type chatStyles struct {
	title lipgloss.Style
	you   lipgloss.Style
	bot   lipgloss.Style
	dim   lipgloss.Style
	panel lipgloss.Style
}

func defaultChatStyles() chatStyles {
	brand := lipgloss.AdaptiveColor{Light: "26", Dark: "81"}
	subtle := lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
	border := lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
	return chatStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(brand),
		you:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bot:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		dim:   lipgloss.NewStyle().Foreground(subtle),
		panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
	}
}

type replyMsg struct {
	question, text string
}

type chatModel struct {
	bot     Replier
	history *store.History
	styles  chatStyles

	input    textinput.Model
	view     viewport.Model
	lines    []string
	thinking bool
	width    int
}

func newChatModel(bot Replier, history *store.History) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask something and press Enter"
	in.CharLimit = 400
	in.Focus()

	vp := viewport.New(80, 16)
	vp.SetContent("conversation will appear here")

	return chatModel{bot: bot, history: history, styles: defaultChatStyles(), input: in, view: vp, width: 80}
}

func askCmd(bot Replier, question string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{question: question, text: bot.Reply(question)}
	}
}

func (m chatModel) Init() tea.Cmd { return textinput.Blink }

func (m *chatModel) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > 2500 {
		m.lines = m.lines[len(m.lines)-2500:]
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = max(20, msg.Width-4)
		m.view.Height = max(4, msg.Height-7)
		m.input.Width = max(20, msg.Width-8)
		m.view.SetContent(strings.Join(m.lines, "\n"))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			if q == "exit" {
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.addLine(m.styles.you.Render("You: ") + q)
			m.thinking = true
			return m, askCmd(m.bot, q)
		}

	case replyMsg:
		m.thinking = false
		m.addLine(m.styles.bot.Render("Bot: ") + msg.text)
		logExchange(m.history, msg.question, msg.text)
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) View() string {
	status := m.styles.dim.Render("enter: send  esc: quit")
	if m.thinking {
		status = m.styles.dim.Render("thinking...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.title.Render("seq2seq chat"),
		m.styles.panel.Render(m.view.View()),
		m.input.View(),
		status,
	)
}

func runTUI(bot Replier, history *store.History) error {
	_, err := tea.NewProgram(newChatModel(bot, history), tea.WithAltScreen()).Run()
	return err
}
