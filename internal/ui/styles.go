// Package ui renders CLI output. Styles apply only when stdout is a
// terminal; piped output stays plain.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Printer writes styled or plain output depending on the terminal.
type Printer struct {
	styled bool
}

// NewPrinter detects whether stdout is a terminal.
func NewPrinter() *Printer {
	fd := os.Stdout.Fd()
	return &Printer{
		styled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

// Title prints a bold section heading.
func (p *Printer) Title(format string, args ...any) {
	fmt.Println(p.render(titleStyle, fmt.Sprintf(format, args...)))
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Println(p.render(successStyle, fmt.Sprintf(format, args...)))
}

// Error prints an error line to stderr.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, p.render(errorStyle, fmt.Sprintf(format, args...)))
}

// Dim prints secondary detail.
func (p *Printer) Dim(format string, args ...any) {
	fmt.Println(p.render(dimStyle, fmt.Sprintf(format, args...)))
}

// Score prints a highlighted score fragment inline.
func (p *Printer) Score(format string, args ...any) string {
	return p.render(scoreStyle, fmt.Sprintf(format, args...))
}

// Plain prints without styling.
func (p *Printer) Plain(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
