package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stderr receives all human-facing progress lines; stdout carries JSON only.
var stderr io.Writer = os.Stderr

// detectColor turns color off when stderr is not a terminal or NO_COLOR is set.
func detectColor() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
		return
	}
	if f, ok := stderr.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		noColor = true
	}
}

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func emit(color, mark, format string, args []any) {
	fmt.Fprintln(stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { emit(colorGreen, "✓", format, args) }

func printError(format string, args ...any) { emit(colorRed, "✗", format, args) }

func printWarning(format string, args ...any) { emit(colorYellow, "⚠", format, args) }

func printStep(format string, args ...any) { emit(colorCyan, "→", format, args) }

// printStatus prints an indented "Label: value" line.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
