package livetui

import "github.com/charmbracelet/lipgloss"

var (
	borderASCII = lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	titleBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")).Bold(true).Padding(0, 1)
	paneStyle     = lipgloss.NewStyle().Border(borderASCII).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	modalStyle    = lipgloss.NewStyle().Border(borderASCII).BorderForeground(lipgloss.Color("33")).Padding(1, 2)

	labelStyle         = lipgloss.NewStyle().Bold(true).Width(12)
	valueMuted         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	readyStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	statusErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	statusSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)
