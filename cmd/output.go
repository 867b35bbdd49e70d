package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// ── Unified output helpers ────────────────────────────────────────────────────
// All commands use these functions to ensure consistent icon usage and
// indentation throughout embr's CLI output.
//
// Icon semantics:
//   ✓  success / healthy
//   ✗  error / failure          (written to stderr)
//   ⚠  warning
//   ○  skipped / not applicable
//   -  not found / missing
//   ~  neutral info / state change

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hashStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// printSection prints a top-level section header, e.g. "=== Status ===".
func printSection(title string) {
	fmt.Fprintf(stdout, "\n%s\n", sectionStyle.Render("=== "+title+" ==="))
}

// printBullet prints a grouped-section bullet, e.g. "● Tracked:".
func printBullet(title string) {
	fmt.Fprintf(stdout, "\n● %s\n", title)
}

func printLine(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
	} else {
		fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
	}
}

// printOK prints a success line.
//
//	name = "" → "  ✓  msg"
//	name set  → "  ✓  [name] msg"
func printOK(name, msg string) { printLine(stdout, okStyle.Render("✓"), name, msg) }

// printErr prints an error line to stderr.
func printErr(name, msg string) { printLine(stderr, errStyle.Render("✗"), name, msg) }

func printWarn(name, msg string) { printLine(stdout, warnStyle.Render("⚠"), name, msg) }

func printSkip(name, msg string) { printLine(stdout, dimStyle.Render("○"), name, msg) }

func printMiss(name, msg string) { printLine(stdout, dimStyle.Render("-"), name, msg) }

func printInfo(name, msg string) { printLine(stdout, "~", name, msg) }

// shortHash renders the abbreviated form of a hash used in listings.
func shortHash(h string) string {
	if len(h) > 12 {
		h = h[:12]
	}
	return hashStyle.Render(h)
}

func percent(x float64) string {
	return fmt.Sprintf("%.2f%%", x*100)
}
