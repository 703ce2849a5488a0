package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hypauto/internal/config"
	"hypauto/internal/outcome"
	"hypauto/internal/quota"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			MarginBottom(1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	muted     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// renderSummary formats the end-of-run report with the quota snapshot.
func renderSummary(s outcome.Summary, rows []quota.Row) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run summary"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %d   %s %d   %s %d   %s %d   %s\n",
		okStyle.Render("succeeded"), s.Stats.Succeeded,
		warnStyle.Render("cancelled"), s.Stats.Cancelled,
		muted.Render("skipped"), s.Stats.Skipped,
		errStyle.Render("failed"), s.Stats.Failed,
		muted.Render(s.Stats.Elapsed.Round(time.Second).String()))

	section := func(title string, style lipgloss.Style, items []outcome.Item) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n")
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, it := range items {
			who := it.PatientID
			if it.Task != "" {
				who += " " + string(it.Task)
			}
			line := fmt.Sprintf("  %s: %s", who, it.Reason)
			if it.OptInRequired {
				line += muted.Render(" (SMS consent)")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	section("Cancelled", warnStyle, s.Cancelled)
	section("Failed", errStyle, s.Failed)
	section("Skipped", muted, s.Skipped)

	var q strings.Builder
	for _, r := range rows {
		if r.Target == 0 && r.Session == 0 {
			continue
		}
		mark := ""
		if !r.Enabled {
			mark = muted.Render(" (disabled)")
		}
		fmt.Fprintf(&q, "%-11s target %3d  done %3d  session %2d  remaining %3d%s\n",
			r.Type, r.Scaled, r.Current+r.Deferred, r.Session, r.Remaining, mark)
	}
	if q.Len() > 0 {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.TrimRight(q.String(), "\n")))
	}
	return b.String()
}

// renderTargets formats the targets of month and, with history, the
// performance of every recorded month.
func renderTargets(c *config.Config, month string, history bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Targets " + config.MonthDisplayName(month)))
	b.WriteString("\n")

	if !c.MonthConfigured(month) {
		b.WriteString(warnStyle.Render("no targets entered"))
		b.WriteString("\n")
	}
	var q strings.Builder
	for _, t := range quota.AllTypes {
		code := string(t)
		target, done := c.Quota.Targets[code], c.Quota.Current[code]+c.Quota.Deferred[code]
		if target == 0 && done == 0 {
			continue
		}
		fmt.Fprintf(&q, "%-11s target %3d  done %3d\n", code, target, done)
	}
	if q.Len() > 0 {
		b.WriteString(boxStyle.Render(strings.TrimRight(q.String(), "\n")))
		b.WriteString("\n")
	}

	if !history {
		return b.String()
	}
	b.WriteString("\n")
	for _, m := range c.Months() {
		p, _ := c.MonthPerformance(m)
		style := okStyle
		if p.Percent < 100 {
			style = warnStyle
		}
		fmt.Fprintf(&b, "%-13s %4d / %-4d %s\n", config.MonthDisplayName(m), p.TotalDone, p.TotalTarget,
			style.Render(fmt.Sprintf("%5.1f%%", p.Percent)))
	}
	return b.String()
}
