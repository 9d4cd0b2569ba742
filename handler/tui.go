package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chat-widget/internal/domain"
	"chat-widget/internal/usecase"
	"chat-widget/internal/view"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	loadingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	chatPane     = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
)

// replyMsg is delivered when an exchange has rendered its outcome.
type replyMsg struct {
	result usecase.Result
}

// Model is the interactive chat surface: a scrolling view of the chat box
// above a single-line input. Enter submits.
type Model struct {
	ctx    context.Context
	widget *usecase.Widget
	title  string

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int
	pending  int
	lastErr  error
}

func NewModel(ctx context.Context, widget *usecase.Widget, title string) Model {
	in := textinput.New()
	in.Placeholder = "Type a message and press Enter"
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()
	return Model{
		ctx:    ctx,
		widget: widget,
		title:  title,
		input:  in,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		// title, input, status and the pane border
		height := msg.Height - 5
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		m.refresh()

	case replyMsg:
		m.pending--
		m.lastErr = msg.result.Err
		m.refresh()
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit is the Enter handler. An empty input does nothing.
func (m Model) submit() (tea.Model, tea.Cmd) {
	x, ok := m.widget.Submit(&m.input)
	if !ok {
		return m, nil
	}
	m.pending++
	m.refresh()
	ctx := m.ctx
	return m, func() tea.Msg {
		return replyMsg{result: x.Await(ctx)}
	}
}

// refresh redraws the chat box and scrolls to the newest entry.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderChatBox(m.widget.ChatBox().Messages(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	status := "ready"
	if m.pending > 0 {
		status = fmt.Sprintf("waiting for %d repl%s", m.pending, plural(m.pending, "y", "ies"))
	} else if m.lastErr != nil {
		status = "last message failed"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title),
		chatPane.Render(m.viewport.View()),
		m.input.View(),
		statusStyle.Render(status+" · enter: send · pgup/pgdn: scroll · esc: quit"),
	)
}

func renderChatBox(msgs []domain.Message, width int) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, renderMessage(msg, width))
	}
	return strings.Join(lines, "\n")
}

func renderMessage(msg domain.Message, width int) string {
	sender := view.Sanitize(msg.Sender) + ":"
	text := view.Sanitize(msg.Text)

	var line string
	switch msg.StyleClass {
	case domain.StyleUser:
		line = userStyle.Render(sender) + " " + text
	case domain.StyleLoading:
		line = botStyle.Render(sender) + " " + loadingStyle.Render(text)
	case domain.StyleError:
		line = botStyle.Render(sender) + " " + errorStyle.Render(text)
	default:
		line = botStyle.Render(sender) + " " + text
	}
	if width > 0 {
		line = lipgloss.NewStyle().Width(width).Render(line)
	}
	return line
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
