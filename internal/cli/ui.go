package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const bannerText = "CRM Keeper"

func (a *App) success(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (a *App) failure(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

func (a *App) hint(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("→"), fmt.Sprintf(format, args...))
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// banner renders the start-up logo.
func banner(w io.Writer) {
	art := figure.NewFigure(bannerText, "", true).String()
	fmt.Fprintln(w, color.GreenString(strings.TrimRight(art, "\n")))
	fmt.Fprintln(w)
}

// startSpinner shows message with a spinner on w while a slow call runs.
// Nothing is drawn unless w is a terminal. The returned func stops it.
func startSpinner(w io.Writer, message string) func() {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(f))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()
	return s.Stop
}

// table prints rows with columns padded to the widest cell.
func table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if i < len(widths) && runewidth.StringWidth(cell) > widths[i] {
				widths[i] = runewidth.StringWidth(cell)
			}
		}
	}

	line := func(cells []string, paint func(string, ...interface{}) string) {
		var b strings.Builder
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(paint("%s", cell))
			if i < len(cells)-1 && i < len(widths) {
				b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)))
			}
		}
		fmt.Fprintln(w, b.String())
	}

	line(header, color.New(color.Bold).Sprintf)
	for _, r := range rows {
		line(r, fmt.Sprintf)
	}
}
