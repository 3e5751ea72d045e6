package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/so101/pkg/input"
	"github.com/gwillem/so101/pkg/robot"
	"github.com/gwillem/so101/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz        int            `long:"hz" description:"Control loop frequency (default from so101.json or 30)"`
	Step      int            `long:"step" description:"Jog increment in raw steps, halved in slow mode (default from so101.json or 50)"`
	GPIOChip  string         `long:"gpio-chip" description:"GPIO chip of a push-button pendant, e.g. gpiochip0"`
	GPIOLines map[string]int `long:"gpio-line" description:"Pendant button to line offset, e.g. --gpio-line jog+:17 (next, prev, jog+, jog-, zero, release, slow)"`
}

const (
	headerHeight = 3 // title + status + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 8 // log box + help
	borderSize   = 2 // chart border
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196", // red
	robot.ShoulderLift: "208", // orange
	robot.ElbowFlex:    "226", // yellow
	robot.WristFlex:    "46",  // green
	robot.WristRoll:    "51",  // cyan
	robot.Gripper:      "201", // magenta
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	releasedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

func motorColor(name robot.MotorName) string {
	if c, ok := motorColors[name]; ok {
		return c
	}
	return "250"
}

type teleopModel struct {
	ctrl          *teleop.Controller
	keys          *input.Keys
	keymap        input.KeyMap
	help          help.Model
	joints        robot.Joints
	lines         logLines
	chart         *streamlinechart.Model
	state         teleop.State
	width         int      // terminal width
	height        int      // terminal height
	logs          []string // last N log messages
	quitting      bool
	lastPositions map[robot.MotorName]float64 // track previous positions to detect movement
}

// hasMovement checks if any motor position has changed from the last state
func (m *teleopModel) hasMovement(positions map[robot.MotorName]float64) bool {
	if m.lastPositions == nil {
		return true // first reading, consider it movement
	}
	for name, pos := range positions {
		if lastPos, ok := m.lastPositions[name]; !ok || pos != lastPos {
			return true
		}
	}
	return false
}

// Messages from the controller
type stateMsg teleop.State

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller, keys *input.Keys, joints robot.Joints, lines logLines) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	// Set up data set styles for each motor
	for _, id := range joints {
		name := robot.JointName(id)
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColor(name)))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:   ctrl,
		keys:   keys,
		keymap: input.DefaultKeyMap(),
		help:   help.New(),
		joints: joints,
		lines:  lines,
		chart:  &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.lines),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		m.keys.Handle(msg)

	case stateMsg:
		m.state = teleop.State(msg)
		if m.state.Positions != nil {
			// Only update chart if there's movement (freeze when idle)
			if m.hasMovement(m.state.Positions) {
				for name, pos := range m.state.Positions {
					m.chart.PushDataSet(string(name), pos)
				}
				m.chart.DrawAll()
				m.lastPositions = m.state.Positions
			}
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.logs = appendLog(m.logs, string(msg))
		return m, waitForLog(m.lines)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("SO-101 Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logText string
	if len(m.logs) == 0 {
		logText = statusStyle.Render("No warnings")
	} else {
		logText = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logText))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keymap))

	return sb.String()
}

func (m teleopModel) renderStatus() string {
	s := m.state
	if s.Timestamp.IsZero() {
		return statusStyle.Render("waiting for first cycle...")
	}

	name := robot.JointName(s.Selected)
	selected := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(motorColor(name))).Render(string(name))
	parts := []string{
		"joint " + selected,
		fmt.Sprintf("target %d", s.Target),
		fmt.Sprintf("limits [%d, %d]", s.Limit.Min, s.Limit.Max),
	}
	if s.Slow {
		parts = append(parts, "slow")
	}
	line := strings.Join(parts, statusStyle.Render("  │  "))
	if s.Released {
		line += "  " + releasedStyle.Render("TORQUE RELEASED")
	}
	return line
}

func (m teleopModel) renderLegend() string {
	var items []string
	for _, id := range m.joints {
		name := robot.JointName(id)
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColor(name))).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		if id == m.state.Selected {
			item = colorStyle.Render("▶ ━━ " + string(name))
		}
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := settings(&opts)
	if err != nil {
		return err
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if c.Step > 0 {
		cfg.Step = c.Step
	}

	// Load limits
	limits, err := limitFile(cfg).Load()
	if robot.IsNotExist(err) {
		return fmt.Errorf("no limit table at %s: %w", cfg.LimitsFile, robot.ErrCalibrationIncomplete)
	}
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	lines := make(logLines, 32)
	logger := newLogger(lines)

	sess, _, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Create controller
	ctrl, err := teleop.NewController(sess, limits, teleop.Config{
		Step:         cfg.Step,
		Hz:           cfg.Hz,
		Speed:        cfg.Speed,
		Acceleration: cfg.Acceleration,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	keys := input.NewKeys(input.DefaultKeyMap())
	var src teleop.Source = keys
	if c.GPIOChip != "" {
		layout, err := input.ParseLines(c.GPIOLines)
		if err != nil {
			return err
		}
		pendant, err := input.OpenPendant(c.GPIOChip, layout)
		if err != nil {
			return err
		}
		defer pendant.Close()
		src = input.Merge(keys, pendant)
	}

	// Start controller in background
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx, src)
	}()

	// Run TUI
	p := tea.NewProgram(initialTeleopModel(ctrl, keys, sess.Joints(), lines), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	// Stop the loop; it releases torque before returning.
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("teleoperation ui: %w", runErr)
	}
	return nil
}
