// Package tui is the Bubble Tea chat interface over a session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wikirag/internal/domain"
	"wikirag/internal/knowledgebase"
	"wikirag/internal/session"
	"wikirag/internal/textutil"
)

// SessionPort is the TUI-facing subset of the session.
type SessionPort interface {
	SetCredential(credential string) error
	State() session.State
	Ask(ctx context.Context, question string) (string, error)
	GenerateKnowledgeBase(ctx context.Context) (string, error)
	History() []domain.Turn
	Summary() string
	DocumentPath() string
}

type inputMode int

const (
	modeCredential inputMode = iota
	modeQuestion
)

const busyStatus = "Wait for the current request to finish."

type answerMsg struct {
	question string
	answer   string
	err      error
}

type generatedMsg struct {
	path string
	err  error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	mode     inputMode
	summary  string
	status   string
	busy     bool
	ready    bool
	pending  string

	// turns is refreshed only between session calls so rendering never
	// waits on a running question.
	turns []domain.Turn
}

// New creates a new TUI model instance. It starts with credential entry when
// the session has no credential yet.
func New(ctx context.Context, s SessionPort) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		ctx:      ctx,
		session:  s,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  s.Summary(),
		turns:    s.History(),
	}
	if s.State() == session.Unconfigured {
		m.setMode(modeCredential)
		m.status = "Enter your OpenAI API key."
	} else {
		m.setMode(modeQuestion)
		m.status = m.readyStatus()
	}
	return m
}

// readyStatus tells the user whether a knowledge base is already on disk.
func (m Model) readyStatus() string {
	path := m.session.DocumentPath()
	if knowledgebase.Exists(path) {
		return "Knowledge base: " + path + ". Ask a question, or ctrl+g to regenerate."
	}
	return "No knowledge base yet. Press ctrl+g to generate it."
}

func (m *Model) setMode(mode inputMode) {
	m.mode = mode
	m.input.Reset()
	switch mode {
	case modeCredential:
		m.input.Prompt = "key> "
		m.input.Placeholder = "sk-..."
		m.input.EchoMode = textinput.EchoPassword
		m.input.EchoCharacter = '•'
	default:
		m.input.Prompt = "> "
		m.input.Placeholder = "Type a question and press Enter"
		m.input.EchoMode = textinput.EchoNormal
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around history and input boxes
		rw, rh := historyBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		m.viewport.Width = max(20, msg.Width-rw)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refreshHistory()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Answered."
		}
		m.summary = m.session.Summary()
		m.turns = m.session.History()
		m.refreshHistory()
		return m, nil

	case generatedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Knowledge base written to " + msg.path
		}
		m.summary = m.session.Summary()
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+g":
			return m.generate()
		case "ctrl+k":
			if m.busy {
				m.status = busyStatus
				return m, nil
			}
			m.setMode(modeCredential)
			m.status = "Enter a new OpenAI API key."
			return m, nil
		case "enter":
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if m.mode == modeCredential {
		// The running command holds the session until it finishes.
		if m.busy {
			m.status = busyStatus
			return m, nil
		}
		if err := m.session.SetCredential(value); err != nil {
			m.status = "Error: " + err.Error()
			m.input.Reset()
			return m, nil
		}
		m.setMode(modeQuestion)
		m.status = "Key set. " + m.readyStatus()
		return m, nil
	}
	if value == "" || m.busy {
		return m, nil
	}
	m.busy = true
	m.pending = value
	m.status = "Thinking..."
	m.input.Reset()
	m.refreshHistory()
	return m, tea.Batch(m.spinner.Tick, m.ask(value))
}

func (m Model) generate() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	if m.session.State() == session.Unconfigured {
		m.status = "Error: " + domain.ErrMissingCredential.Error()
		return m, nil
	}
	m.busy = true
	m.status = "Scraping sources and building the knowledge base..."
	return m, tea.Batch(m.spinner.Tick, m.generateCmd())
}

func (m Model) ask(question string) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		answer, err := s.Ask(ctx, question)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) generateCmd() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		path, err := s.GenerateKnowledgeBase(ctx)
		return generatedMsg{path: path, err: err}
	}
}

func (m *Model) refreshHistory() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the TUI layout and conversation history.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Wikipedia RAG Chat")
	summary := summaryStyle.Render(truncate(m.summary, m.viewport.Width))
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	history := historyBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + history + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	turns := m.turns
	if len(turns) == 0 && m.pending == "" {
		return "No questions yet."
	}
	wrap := lipgloss.NewStyle().Width(max(10, m.viewport.Width))
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(wrap.Render(youStyle.Render("You: ") + t.Question))
		b.WriteString("\n")
		b.WriteString(wrap.Render(botStyle.Render("Bot: ") + highlightBestSentence(t.Answer, t.Question)))
	}
	if m.pending != "" {
		if len(turns) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(wrap.Render(youStyle.Render("You: ") + m.pending))
	}
	return b.String()
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	youStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// highlightBestSentence emphasises the sentence of text sharing the most
// words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 || len(sentences) < 2 {
		return strings.TrimSpace(text)
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := textutil.Overlap(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:width-3]))
}
