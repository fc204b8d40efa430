package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/landrop/landrop/internal/utils"
)

// TransferMode selects the header for a live transfer view.
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeBroadcast
)

// TransferUI shows live progress for one or more outbound transfers. Updates
// arrive from the goroutine that reads the daemon's WebSocket, the rendering
// runs in its own Bubble Tea program.
type TransferUI struct {
	program    *tea.Program
	model      *liveTransferModel
	updateChan chan progressUpdate
	wg         sync.WaitGroup
}

type progressUpdate struct {
	targetID  int
	current   int64
	completed bool
	failed    bool
	errMsg    string
}

// liveTransferModel is an internal model for live transfer updates
type liveTransferModel struct {
	mode       TransferMode
	state      string
	targets    []*liveTargetProgress
	progBars   []progress.Model
	spinner    spinner.Model
	startTime  time.Time
	updateChan chan progressUpdate
	mu         sync.RWMutex
	quitting   bool
}

type liveTargetProgress struct {
	name      string
	size      int64
	current   int64
	startTime time.Time
	complete  bool
	failed    bool
	errMsg    string
}

// NewTransferUI creates a live view with one row per target. For a direct
// send that is the file, for a broadcast one row per peer.
func NewTransferUI(mode TransferMode, targetNames []string, size int64) *TransferUI {
	updateChan := make(chan progressUpdate, 100)

	targets := make([]*liveTargetProgress, len(targetNames))
	progBars := make([]progress.Model, len(targetNames))

	for i := range targetNames {
		targets[i] = &liveTargetProgress{
			name: targetNames[i],
			size: size,
		}
		progBars[i] = progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(25),
			progress.WithoutPercentage(),
		)
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &liveTransferModel{
		mode:       mode,
		state:      "Transferring...",
		targets:    targets,
		progBars:   progBars,
		spinner:    s,
		updateChan: updateChan,
		startTime:  time.Now(),
	}

	return &TransferUI{
		model:      model,
		updateChan: updateChan,
	}
}

// Start starts the UI in a goroutine
func (ui *TransferUI) Start() {
	// Inline mode without alt screen keeps previous terminal output
	// visible.
	ui.program = tea.NewProgram(ui.model)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// UpdateProgress updates the byte count for one target
func (ui *TransferUI) UpdateProgress(targetID int, current int64) {
	select {
	case ui.updateChan <- progressUpdate{targetID: targetID, current: current}:
	default:
	}
}

// MarkComplete marks one target as done
func (ui *TransferUI) MarkComplete(targetID int) {
	select {
	case ui.updateChan <- progressUpdate{targetID: targetID, completed: true}:
	default:
	}
}

// MarkFailed marks one target as failed
func (ui *TransferUI) MarkFailed(targetID int, errMsg string) {
	select {
	case ui.updateChan <- progressUpdate{targetID: targetID, failed: true, errMsg: errMsg}:
	default:
	}
}

// SetState sets the current state message
func (ui *TransferUI) SetState(state string) {
	ui.model.mu.Lock()
	ui.model.state = state
	ui.model.mu.Unlock()
}

// Stop stops the UI and waits for the final frame
func (ui *TransferUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

// Model methods
func (m *liveTransferModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenForUpdates(),
		tickCmd(),
	)
}

// TickMsg drives speed and ETA recalculation.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *liveTransferModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *liveTransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		for i := range m.progBars {
			m.progBars[i].Width = min(25, msg.Width-60)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		if !m.quitting && !m.allDone() {
			cmds = append(cmds, tickCmd())
		}

	case progressUpdate:
		m.applyUpdate(msg)
		cmds = append(cmds, m.listenForUpdates())

	case progress.FrameMsg:
		for i := range m.progBars {
			model, cmd := m.progBars[i].Update(msg)
			m.progBars[i] = model.(progress.Model)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *liveTransferModel) applyUpdate(msg progressUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.targetID < 0 || msg.targetID >= len(m.targets) {
		return
	}
	target := m.targets[msg.targetID]

	switch {
	case msg.completed:
		// A failure sticks even if a completion marker follows.
		if !target.failed {
			target.complete = true
			target.current = target.size
		}
	case msg.failed:
		target.failed = true
		target.errMsg = msg.errMsg
	default:
		target.current = msg.current
		if target.startTime.IsZero() {
			target.startTime = time.Now()
		}
	}
}

func (m *liveTransferModel) allDone() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.targets {
		if !t.complete && !t.failed {
			return false
		}
	}
	return true
}

func (m *liveTransferModel) View() string {
	if m.quitting {
		return ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	modeIcon := IconSend
	modeText := "Sending"
	if m.mode == ModeBroadcast {
		modeIcon = IconBroadcast
		modeText = "Broadcasting"
	}

	b.WriteString(fmt.Sprintf("\n%s %s\n\n", modeIcon, modeText))
	b.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), m.state))

	var totalSize, totalSent int64
	for _, t := range m.targets {
		totalSize += t.size
		totalSent += t.current
	}

	var overallPercent float64
	if totalSize > 0 {
		overallPercent = float64(totalSent) / float64(totalSize) * 100
	}

	elapsed := time.Since(m.startTime).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(totalSent) / elapsed
	}

	b.WriteString(fmt.Sprintf("Overall: %.1f%% (%s/%s) %s\n\n",
		overallPercent,
		utils.FormatSize(totalSent),
		utils.FormatSize(totalSize),
		MutedStyle.Render(utils.FormatSpeed(speed)),
	))

	for i, t := range m.targets {
		var icon string
		var nameStyle lipgloss.Style

		if t.failed {
			icon = IconError
			nameStyle = ErrorStyle
		} else if t.complete {
			icon = IconSuccess
			nameStyle = SuccessStyle
		} else if t.current > 0 {
			icon = m.spinner.View()
			nameStyle = lipgloss.NewStyle()
		} else {
			icon = "○"
			nameStyle = MutedStyle
		}

		name := utils.TruncateString(t.name, 22)
		b.WriteString(fmt.Sprintf("  %s %s ", icon, nameStyle.Width(24).Render(name)))

		if t.size > 0 {
			percent := float64(t.current) / float64(t.size)
			b.WriteString(m.progBars[i].ViewAs(percent))
			b.WriteString(fmt.Sprintf(" %5.1f%%", percent*100))
		}

		if !t.complete && !t.failed && t.current > 0 && !t.startTime.IsZero() {
			targetElapsed := time.Since(t.startTime).Seconds()
			if targetElapsed > 0 {
				targetSpeed := float64(t.current) / targetElapsed
				b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(targetSpeed)))
				remaining := t.size - t.current
				if remaining > 0 && targetSpeed > 0 {
					eta := time.Duration(float64(remaining) / targetSpeed * float64(time.Second))
					b.WriteString(MutedStyle.Render(" ETA: " + utils.FormatTimeDuration(eta)))
				}
			}
		}

		if t.failed && t.errMsg != "" {
			b.WriteString(ErrorStyle.Render(" " + utils.TruncateString(t.errMsg, 40)))
		}

		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to detach; the transfer keeps running in the daemon"))

	return b.String()
}
