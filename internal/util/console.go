package util

import (
	"fmt"
	"io"
	"os"
	"time"
)

const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Now is the clock console lines are stamped with.
var Now = time.Now

func TimeHM() string {
	return Now().Format("15:04")
}

func Colorize(s string, color string) string {
	if color == "" {
		return s
	}
	return color + s + ColorReset
}

// Fline writes one console line to w as "HH:MM [LABEL] msg". An empty
// label drops the label column.
func Fline(w io.Writer, label string, labelColor string, msg string) {
	if label != "" {
		fmt.Fprintf(w, "%s %s %s\n", TimeHM(), Colorize(label, labelColor), msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", TimeHM(), msg)
}

func Flinef(w io.Writer, label string, labelColor string, format string, args ...any) {
	Fline(w, label, labelColor, fmt.Sprintf(format, args...))
}

// Line is Fline to stdout.
func Line(label string, labelColor string, msg string) {
	Fline(os.Stdout, label, labelColor, msg)
}

func Linef(label string, labelColor string, format string, args ...any) {
	Fline(os.Stdout, label, labelColor, fmt.Sprintf(format, args...))
}
