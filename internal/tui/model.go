package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"studyrag/internal/service"
)

// Asker is the TUI-facing subset of the tutor.
type Asker interface {
	Stream(ctx context.Context, req service.Request, out chan<- string) (service.Answer, error)
}

type tokenMsg string

type answerMsg struct {
	answer service.Answer
	err    error
}

// Model is the Bubble Tea model for the question console.
type Model struct {
	ctx         context.Context
	tutor       Asker
	input       textinput.Model
	viewport    viewport.Model
	header      string
	status      string
	ready       bool
	busy        bool
	showContext bool
	question    string
	answer      strings.Builder
	last        *service.Answer
	tokens      <-chan string
	result      <-chan answerMsg
}

// New creates a new TUI model. header is shown under the title, typically
// the loaded corpora.
func New(ctx context.Context, tutor Asker, header string) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return &Model{ctx: ctx, tutor: tutor, input: ti, viewport: vp, header: header, status: "Ready. Tab toggles answer/context."}
}

func (m *Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and streaming events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // title + header, status, input box, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case tokenMsg:
		m.answer.WriteString(string(msg))
		m.refresh()
		m.viewport.GotoBottom()
		return m, waitForToken(m.tokens, m.result)
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.last = &msg.answer
			m.status = fmt.Sprintf("Confidence: %s | %s", msg.answer.Confidence, sourceSummary(msg.answer))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m, m.ask(q)
		case "tab":
			m.showContext = !m.showContext
			m.refresh()
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) ask(q string) tea.Cmd {
	tokens := make(chan string, 64)
	result := make(chan answerMsg, 1)
	ctx, tutor := m.ctx, m.tutor
	go func() {
		ans, err := tutor.Stream(ctx, service.Request{Question: q}, tokens)
		close(tokens)
		result <- answerMsg{answer: ans, err: err}
	}()
	m.busy = true
	m.question = q
	m.answer.Reset()
	m.last = nil
	m.tokens, m.result = tokens, result
	m.status = fmt.Sprintf("Answering %q...", q)
	m.refresh()
	return waitForToken(tokens, result)
}

func waitForToken(tokens <-chan string, result <-chan answerMsg) tea.Cmd {
	return func() tea.Msg {
		if tok, ok := <-tokens; ok {
			return tokenMsg(tok)
		}
		return <-result
	}
}

// View renders the TUI layout.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("Study Tutor")
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + header + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
}

func (m *Model) render() string {
	if m.question == "" {
		return "No questions yet."
	}
	if m.showContext {
		if m.last == nil {
			return "Context is shown once the answer completes."
		}
		return renderContext(*m.last, m.question)
	}
	return lipgloss.NewStyle().Bold(true).Render("Q: "+m.question) + "\n\n" + m.answer.String()
}

func renderContext(ans service.Answer, question string) string {
	if ans.Context.Fallback {
		return ans.Context.Text
	}
	var sb strings.Builder
	for _, o := range ans.Context.Outcomes {
		if !o.Kept {
			continue
		}
		sb.WriteString(lipgloss.NewStyle().Bold(true).Render(o.Label))
		sb.WriteString("\n")
		for _, block := range strings.Split(o.Text, "\n\n") {
			head, text, found := strings.Cut(block, "\n")
			if !found {
				text, head = head, ""
			}
			if head != "" {
				sb.WriteString(head + "\n")
			}
			sb.WriteString(highlightBestSentence(text, question) + "\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sourceSummary(ans service.Answer) string {
	if ans.Context.Fallback {
		return "no study material matched"
	}
	var used []string
	for _, o := range ans.Context.Outcomes {
		if o.Kept {
			used = append(used, o.Label)
		}
	}
	s := "sources: " + strings.Join(used, ", ")
	if n := len(ans.Context.Failed()); n > 0 {
		s += fmt.Sprintf(" (%d failed)", n)
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	best, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == best && bestScore > 0 {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
