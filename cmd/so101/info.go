package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/so101/pkg/robot"
)

type InfoCommand struct{}

func (c *InfoCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := settings(&opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	sess, fb, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Reading must not change torque, so the session is not closed.
	defer fb.Close()

	var limits *robot.LimitTable
	if lf := limitFile(cfg); lf.Exists() {
		if limits, err = lf.Load(); err != nil {
			logger.Warn("limit table not loaded", "err", err)
		}
	}

	fmt.Println(headerStyle.Render("SO-101 on " + cfg.Port))
	fmt.Println(renderTelemetry(sess.ReadAll(ctx), limits))
	return nil
}

func renderTelemetry(snaps []robot.Telemetry, limits *robot.LimitTable) string {
	headers := []string{"ID", "Joint", "Position", "Velocity", "Accel", "Status"}
	if limits != nil {
		headers = append(headers, "Zero", "Min", "Max")
	}

	unavailable := make(map[int]bool)
	rows := make([][]string, 0, len(snaps))
	for i, t := range snaps {
		row := []string{strconv.Itoa(t.ID), string(robot.JointName(t.ID))}
		if t.Available() {
			row = append(row,
				strconv.Itoa(t.Position),
				strconv.Itoa(t.Velocity),
				strconv.Itoa(t.Acceleration),
				fmt.Sprintf("0x%02x", t.Status),
			)
		} else {
			unavailable[i] = true
			row = append(row, "unavailable", "", "", "")
		}
		if limits != nil {
			row = append(row, "-", "-", "-")
			if zero, ok := limits.ZeroOf(t.ID); ok {
				row[6] = strconv.Itoa(zero)
			}
			if e, ok := limits.Limit(t.ID); ok {
				row[7] = strconv.Itoa(e.Min)
				row[8] = strconv.Itoa(e.Max)
			}
		}
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 1:
				return tableMotorStyle
			case col == 2 && unavailable[row]:
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		}).
		Render()
}
