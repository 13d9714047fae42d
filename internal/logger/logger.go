// Package logger provides the console output used by the spendlens binaries.
// It is intentionally small: tagged lines with a status glyph, plus a few
// helpers for startup banners and key/value stats. Colors are disabled
// automatically when stdout is not a terminal.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + ansiReset
}

func line(glyph, color, tag, msg string) {
	fmt.Fprintf(os.Stdout, "%s %s %s\n", paint(color, glyph), paint(ansiBold, "["+tag+"]"), msg)
}

// Info logs a neutral progress line.
func Info(tag, msg string) { line("•", ansiCyan, tag, msg) }

// Success logs a completed step.
func Success(tag, msg string) { line("✓", ansiGreen, tag, msg) }

// Warn logs a recoverable problem.
func Warn(tag, msg string) { line("!", ansiYellow, tag, msg) }

// Error logs a failure.
func Error(tag, msg string) { line("✗", ansiRed, tag, msg) }

// Banner prints the startup header with the build version.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	title := "spendlens " + version
	rule := strings.Repeat("─", len(title)+2)
	fmt.Fprintf(os.Stdout, "%s\n %s\n%s\n", paint(ansiDim, rule), paint(ansiBold, title), paint(ansiDim, rule))
}

// Section prints a divider introducing a startup phase.
func Section(name string) {
	fmt.Fprintf(os.Stdout, "\n%s %s\n", paint(ansiDim, "──"), paint(ansiBold, name))
}

// Stats prints an indented key/value pair under the current section.
func Stats(key string, value any) {
	fmt.Fprintf(os.Stdout, "   %s %v\n", paint(ansiDim, key+":"), value)
}

// Server prints the address the HTTP server is listening on.
func Server(addr string) {
	fmt.Fprintf(os.Stdout, "\n %s %s\n\n", paint(ansiGreen, "▲ listening on"), paint(ansiBold, "http://"+addr))
}
