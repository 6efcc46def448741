package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ec-aaron/g292-z20/internal/constants"
	"github.com/ec-aaron/g292-z20/internal/expectation"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorOrange = lipgloss.Color("#FFB86C")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headStyle  = lipgloss.NewStyle().Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

func outcomeStyle(o expectation.Outcome) lipgloss.Style {
	switch o {
	case expectation.OutcomePass:
		return passStyle
	case expectation.OutcomeFail:
		return failStyle
	case expectation.OutcomeError:
		return errorStyle
	default:
		return skipStyle
	}
}

// styledPad pads a styled string to the given visual width.
// Unlike fmt.Sprintf("%-*s"), this accounts for ANSI escape codes.
func styledPad(styled string, width int) string {
	if w := lipgloss.Width(styled); w < width {
		return styled + strings.Repeat(" ", width-w)
	}
	return styled
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

const gap = "  "

// Render lays the report out as a table for a terminal.
func (r Report) Render() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", constants.CmdName, r.Version)))
	if host := r.hostLine(); host != "" {
		sb.WriteString("\n" + dimStyle.Render(host))
	}
	sb.WriteString("\n\n")

	wCat, wAttr, wExp := r.widths()
	wRes := len("skipped")

	sb.WriteString(headStyle.Render(
		padRight("CATEGORY", wCat)+gap+
			padRight("ATTRIBUTE", wAttr)+gap+
			padRight("RESULT", wRes)+gap+
			padRight("EXPECTED", wExp)+gap+
			"OBSERVED") + "\n")

	for _, res := range r.Results {
		for _, v := range res.Verdicts {
			observed := v.Observed
			if observed == "" {
				observed = v.Message
			}

			sb.WriteString(padRight(string(v.Category), wCat) + gap +
				padRight(v.Attribute, wAttr) + gap +
				styledPad(outcomeStyle(v.Outcome).Render(string(v.Outcome)), wRes) + gap +
				padRight(v.Expected, wExp) + gap +
				observed + "\n")

			// Failure details go on their own line, under the observed column.
			if v.Observed != "" && v.Message != "" {
				indent := wCat + wAttr + wRes + wExp + 4*len(gap)
				sb.WriteString(strings.Repeat(" ", indent) + dimStyle.Render(v.Message) + "\n")
			}
		}
	}

	if len(r.WriteTests) > 0 {
		sb.WriteString("\n" + headStyle.Render("Write test detail") + "\n")
		for _, wt := range r.WriteTests {
			sb.WriteString(gap + writeTestLine(wt) + "\n")
		}
	}

	sb.WriteString("\n" + r.summaryLine() + "\n")
	return sb.String()
}

func (r Report) hostLine() string {
	var parts []string
	switch {
	case r.Host.Hostname != "" && r.Host.Product != "":
		parts = append(parts, fmt.Sprintf("%s (%s)", r.Host.Hostname, r.Host.Product))
	case r.Host.Hostname != "":
		parts = append(parts, r.Host.Hostname)
	case r.Host.Product != "":
		parts = append(parts, r.Host.Product)
	}

	if r.Host.OS.Name != "" {
		os := r.Host.OS.Name
		if r.Host.OS.Version != "" {
			os += " " + r.Host.OS.Version
		}
		parts = append(parts, os)
	}
	if r.Host.Kernel != "" {
		parts = append(parts, "kernel "+r.Host.Kernel)
	}

	return strings.Join(parts, ", ")
}

func (r Report) widths() (wCat, wAttr, wExp int) {
	wCat, wAttr, wExp = len("CATEGORY"), len("ATTRIBUTE"), len("EXPECTED")
	for _, res := range r.Results {
		for _, v := range res.Verdicts {
			wCat = max(wCat, len(v.Category))
			wAttr = max(wAttr, len(v.Attribute))
			wExp = max(wExp, len(v.Expected))
		}
	}
	return wCat, wAttr, wExp
}

func writeTestLine(wt WriteTest) string {
	if wt.Skipped != "" {
		return skipStyle.Render(fmt.Sprintf("%s: skipped (%s)", wt.Device, wt.Skipped))
	}
	if wt.Error != "" {
		return errorStyle.Render(fmt.Sprintf("%s: error (%s)", wt.Device, wt.Error))
	}

	state := passStyle.Render("match")
	if !wt.Match {
		state = failStyle.Render("MISMATCH")
	}
	line := fmt.Sprintf("%s at %s: %d MiB in %s, crc 0x%08X, %s",
		wt.Device, wt.MountPath, wt.SizeMB, wt.Elapsed.Round(time.Millisecond), wt.WriteCRC, state)
	if !wt.CleanupOK {
		line += " " + errorStyle.Render("(artifact left behind)")
	}
	return line
}

func (r Report) summaryLine() string {
	counts := map[expectation.Outcome]int{}
	for _, res := range r.Results {
		counts[res.Outcome()]++
	}

	var parts []string
	for _, c := range []struct {
		n    int
		noun string
	}{
		{counts[expectation.OutcomePass], "passed"},
		{counts[expectation.OutcomeFail], "failed"},
		{counts[expectation.OutcomeError], "errored"},
		{counts[expectation.OutcomeSkipped], "skipped"},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.noun))
		}
	}
	if len(parts) == 0 {
		parts = []string{"no categories checked"}
	}

	o := r.Outcome()
	line := fmt.Sprintf("Result: %s (%s)",
		outcomeStyle(o).Render(strings.ToUpper(string(o))), strings.Join(parts, ", "))
	if !r.Finished.IsZero() {
		line += dimStyle.Render(" in " + r.Finished.Sub(r.Started).Round(time.Second).String())
	}
	return line
}
