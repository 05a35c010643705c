package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a live renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIngestModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Update(event)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.SetStage(StageComplete, 0)
	r.send(completeMsg(stats))
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(msg)
	}
}

type refreshMsg struct{}
type completeMsg CompletionStats

// ingestModel is the bubbletea model for the live panel.
type ingestModel struct {
	tracker     *ProgressTracker
	title       string
	width       int
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newIngestModel(tracker *ProgressTracker, title string) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	if title == "" {
		title = "docrag ingest"
	}
	return &ingestModel{
		tracker:     tracker,
		title:       title,
		width:       80,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-24, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.complete {
		return m.renderComplete()
	}

	stats := m.tracker.Stats()
	width := max(m.width-4, 40)

	var lines []string
	if stats.Total == 0 {
		lines = append(lines, fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage))
	} else {
		bar := m.progressBar.ViewAs(stats.Progress)
		pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
		lines = append(lines, bar+"  "+pct)
		count := fmt.Sprintf("%d / %d files  •  %d chunks", stats.Current, stats.Total, stats.Chunks)
		if stats.ETA > 0 {
			count += fmt.Sprintf("  •  ETA %s", formatDuration(stats.ETA))
		}
		lines = append(lines, m.styles.Label.Render(count))
	}
	if stats.CurrentFile != "" {
		lines = append(lines, m.styles.Dim.Render(truncatePath(stats.CurrentFile, width-4)))
	}
	if stats.ErrorCount > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", stats.ErrorCount)))
	}

	return m.styles.Header.Render(m.title) + "\n" +
		m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")) + "\n"
}

func (m *ingestModel) renderComplete() string {
	lines := []string{
		m.styles.Success.Render("✓ Ingest complete"),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Files:   "), m.stats.Files),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Chunks:  "), m.stats.Chunks),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), formatDuration(m.stats.Duration)),
	}
	if m.stats.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", m.stats.Errors)))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncatePath shortens path to maxLen, keeping the file name.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen || maxLen < 4 {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

var _ Renderer = (*TUIRenderer)(nil)
