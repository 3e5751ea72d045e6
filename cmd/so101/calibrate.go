package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/so101/pkg/calibrate"
	"github.com/gwillem/so101/pkg/robot"
)

type CalibrateCommand struct {
	Force bool `short:"f" long:"force" description:"Overwrite an existing limit table without asking"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	cfg, err := settings(&opts)
	if err != nil {
		return err
	}
	store := limitFile(cfg)

	if store.Exists() && !c.Force {
		overwrite := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s exists. Overwrite it?", store.Path)).
					Description("The current file is only replaced once calibration is saved").
					Affirmative("Overwrite").
					Negative("Keep").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil || !overwrite {
			return robot.ErrCancelled
		}
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

	engine := calibrate.New(sess, store,
		calibrate.WithLogger(logger),
		calibrate.WithInterval(calibrate.DefaultInterval),
	)
	signals := make(chan calibrate.Signal, 1)
	done := make(chan calibrationResult, 1)

	p := tea.NewProgram(newCalibrationModel(engine, signals, lines), tea.WithContext(ctx))
	go func() {
		t, err := engine.Run(ctx, signals)
		res := calibrationResult{t, err}
		done <- res
		p.Send(doneMsg(res))
	}()

	final, runErr := p.Run()

	var res calibrationResult
	if cm, ok := final.(calibrationModel); ok && cm.result != nil {
		res = *cm.result
	} else {
		// The UI ended first; stop the engine and wait for it to release torque.
		sendSignal(signals, calibrate.SignalCancel)
		res = <-done
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("calibration ui: %w", runErr)
	}
	if res.err != nil {
		return res.err
	}

	fmt.Println(successStyle.Render("Calibration saved to " + store.Path))
	fmt.Println(renderLimits(sess.Joints(), res.table))
	fmt.Println()
	fmt.Println("Start jogging with: " + headerStyle.Render("so101 teleoperate"))
	return nil
}

type calibrationResult struct {
	table *robot.LimitTable
	err   error
}

func sendSignal(ch chan<- calibrate.Signal, sig calibrate.Signal) {
	select {
	case ch <- sig:
	default:
	}
}

// Calibration TUI model
type calibrationModel struct {
	engine   *calibrate.Engine
	signals  chan<- calibrate.Signal
	lines    logLines
	progress calibrate.Progress
	logs     []string
	result   *calibrationResult
}

type progressMsg calibrate.Progress
type doneMsg calibrationResult
type logMsg string

func newCalibrationModel(engine *calibrate.Engine, signals chan<- calibrate.Signal, lines logLines) calibrationModel {
	return calibrationModel{
		engine:   engine,
		signals:  signals,
		lines:    lines,
		progress: engine.Progress(),
	}
}

func waitForProgress(e *calibrate.Engine) tea.Cmd {
	return func() tea.Msg {
		return progressMsg(<-e.Updates())
	}
}

func waitForLog(lines logLines) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-lines)
	}
}

func (m calibrationModel) Init() tea.Cmd {
	return tea.Batch(
		waitForProgress(m.engine),
		waitForLog(m.lines),
	)
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			sendSignal(m.signals, calibrate.SignalConfirm)
		case "q", "esc", "ctrl+c":
			sendSignal(m.signals, calibrate.SignalCancel)
		}

	case progressMsg:
		m.progress = calibrate.Progress(msg)
		return m, waitForProgress(m.engine)

	case logMsg:
		m.logs = appendLog(m.logs, string(msg))
		return m, waitForLog(m.lines)

	case doneMsg:
		res := calibrationResult(msg)
		m.result = &res
		m.progress = m.engine.Progress()
		return m, tea.Quit
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.result != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("SO-101 Calibration"))
	sb.WriteString(dimStyle.Render("  " + m.progress.Phase.String()))
	sb.WriteString("\n\n")

	switch m.progress.Phase {
	case calibrate.AwaitingZero:
		sb.WriteString(subHeaderStyle.Render("Step 1: zero pose"))
		sb.WriteString("\nMove the arm by hand to its neutral pose.\n\n")
	case calibrate.CapturingRange:
		sb.WriteString(subHeaderStyle.Render("Step 2: range of motion"))
		sb.WriteString("\nMove each joint to its minimum AND maximum positions.\n\n")
	}

	sb.WriteString(renderProgress(m.progress))
	sb.WriteString("\n\n")
	if len(m.logs) > 0 {
		sb.WriteString(dimStyle.Render(strings.Join(m.logs, "\n")))
		sb.WriteString("\n\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter to confirm, q to cancel"))

	return sb.String()
}

var (
	tableHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle      = lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

// goodRange is the travel in raw steps above which a joint counts as
// explored.
const goodRange = 500

func renderProgress(p calibrate.Progress) string {
	rows := make([][]string, 0, len(p.Joints))
	ranges := make([]int, 0, len(p.Joints))
	for _, j := range p.Joints {
		cur, zero, lo, hi := "-", "-", "-", "-"
		if j.Seen {
			cur = fmt.Sprintf("%d", j.Current)
		}
		if j.HasZero {
			zero = fmt.Sprintf("%d", j.Zero)
		}
		if j.HasRange {
			lo = fmt.Sprintf("%d", j.Limit.Min)
			hi = fmt.Sprintf("%d", j.Limit.Max)
		}
		ranges = append(ranges, j.Range())
		rows = append(rows, []string{string(j.Name), cur, zero, lo, hi, fmt.Sprintf("%d", j.Range())})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Zero", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 5:
				if row >= 0 && row < len(ranges) && ranges[row] > goodRange {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		}).
		Render()
}

func renderLimits(joints robot.Joints, t *robot.LimitTable) string {
	p := calibrate.Progress{}
	for _, id := range joints {
		jp := calibrate.JointProgress{ID: id, Name: robot.JointName(id)}
		jp.Zero, jp.HasZero = t.ZeroOf(id)
		jp.Limit, jp.HasRange = t.Limit(id)
		jp.Current, jp.Seen = jp.Zero, jp.HasZero
		p.Joints = append(p.Joints, jp)
	}
	return renderProgress(p)
}

const maxLogs = 5 // number of log messages to show

func appendLog(logs []string, msg string) []string {
	logs = append(logs, msg)
	if len(logs) > maxLogs {
		logs = logs[len(logs)-maxLogs:]
	}
	return logs
}
