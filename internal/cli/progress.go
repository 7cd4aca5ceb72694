package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"shiptrack/internal/carriers"
)

// ProgressSpinner shows a spinner on stderr while a long operation runs.
// Without a terminal, or with colors disabled, it prints the message once.
type ProgressSpinner struct {
	spinner  spinner.Model
	message  string
	animate  bool
	out      io.Writer
	complete chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	style    lipgloss.Style
}

// NewProgressSpinner creates a new progress spinner
func NewProgressSpinner(message string, noColor bool) *ProgressSpinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // Blue

	return &ProgressSpinner{
		spinner:  s,
		message:  message,
		animate:  !noColor && os.Getenv("CI") == "" && isatty.IsTerminal(os.Stderr.Fd()),
		out:      os.Stderr,
		complete: make(chan struct{}),
		done:     make(chan struct{}),
		style:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")), // Gray for message
	}
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	if !p.animate {
		fmt.Fprintf(p.out, "%s\n", p.message)
		close(p.done)
		return
	}

	prog := &spinnerProgram{
		spinner:  p.spinner,
		message:  p.message,
		complete: p.complete,
		style:    p.style,
	}

	go func() {
		defer close(p.done)
		_, _ = tea.NewProgram(prog, tea.WithOutput(p.out), tea.WithInput(nil)).Run()
	}()
}

// Stop stops the spinner and waits for it to clear its line
func (p *ProgressSpinner) Stop() {
	p.stopOnce.Do(func() {
		close(p.complete)
		<-p.done
	})
}

// AcquireHook returns a hook that shows a spinner while a carrier session is
// being generated in the browser
func AcquireHook(noColor, quiet bool) carriers.AcquireHook {
	if quiet {
		return nil
	}
	return func(carrier string) func() {
		s := NewProgressSpinner("Generating cookies...", noColor)
		s.Start()
		return s.Stop
	}
}

// spinnerProgram implements the tea.Model interface for the spinner
type spinnerProgram struct {
	spinner  spinner.Model
	message  string
	complete chan struct{}
	style    lipgloss.Style
	finished bool
}

func (s *spinnerProgram) Init() tea.Cmd {
	return tea.Batch(
		s.spinner.Tick,
		s.waitForComplete(),
	)
}

func (s *spinnerProgram) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	case completeMsg:
		s.finished = true
		return s, tea.Quit
	}
	return s, nil
}

func (s *spinnerProgram) View() string {
	if s.finished {
		return ""
	}
	return fmt.Sprintf("%s %s", s.spinner.View(), s.style.Render(s.message))
}

func (s *spinnerProgram) waitForComplete() tea.Cmd {
	return func() tea.Msg {
		<-s.complete
		return completeMsg{}
	}
}

type completeMsg struct{}
