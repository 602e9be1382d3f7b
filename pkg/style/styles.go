package style

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(HeadingColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	PathStyle = lipgloss.NewStyle().
			Foreground(PathColor).
			Italic(true)

	ModStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	ListItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

// Status indicators
var (
	EnabledIndicator  = SuccessStyle.Render("✓")
	DisabledIndicator = MutedStyle.Render("○")
	ConflictIndicator = WarningStyle.Render("!")
	DeployedIndicator = SuccessStyle.Render("●")
	RecoveryIndicator = ErrorStyle.Render("✗")
)
