package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	indexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(6).Align(lipgloss.Right)
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Width(10).Align(lipgloss.Right)
	metaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func field(label string, value any) string {
	return labelStyle.Render(label) + " " + fmt.Sprint(value)
}
