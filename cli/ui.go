package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#2DD4BF") // Teal
	dimColor     = lipgloss.Color("#72767D") // Dim gray
	successColor = lipgloss.Color("#57F287") // Green
	errorColor   = lipgloss.Color("#ED4245") // Red
	warnColor    = lipgloss.Color("#FEE75C") // Yellow
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	hintStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	entityStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)
)

// Icons
const (
	iconCheck  = "✓"
	iconCross  = "✗"
	iconStream = "≋"
	iconChange = "▸"
	iconDelete = "−"
	iconInfo   = "●"
	iconWarn   = "▲"
)

// UI handles formatted CLI output.
type UI struct{}

// NewUI creates a new UI instance.
func NewUI() *UI {
	return &UI{}
}

// Header prints a styled header.
func (u *UI) Header(icon, title string) {
	fmt.Println()
	fmt.Printf("%s %s\n", icon, titleStyle.Render(title))
}

// Info prints a key-value pair.
func (u *UI) Info(label, value string) {
	fmt.Printf("  %s %s\n",
		labelStyle.Render(label+":"),
		valueStyle.Render(value))
}

// Blank prints an empty line.
func (u *UI) Blank() {
	fmt.Println()
}

// Success prints a success message.
func (u *UI) Success(message string) {
	fmt.Printf("%s %s\n", successStyle.Render(iconCheck), message)
}

// Warn prints a warning message.
func (u *UI) Warn(message string) {
	fmt.Printf("%s %s\n", warnStyle.Render(iconWarn), message)
}

// Hint prints a hint message.
func (u *UI) Hint(message string) {
	fmt.Printf("  %s\n", hintStyle.Render(message))
}

// Divider prints a horizontal line.
func (u *UI) Divider() {
	fmt.Println(subtitleStyle.Render(strings.Repeat("─", 50)))
}

// Summary prints a summary section.
func (u *UI) Summary(items [][2]string) {
	fmt.Println()
	u.Divider()
	for _, item := range items {
		u.Info(item[0], item[1])
	}
	u.Divider()
}

// ChangeRow prints one formatted change.
func (u *UI) ChangeRow(kind, entity, id, detail string) {
	icon := iconChange
	if kind == "delete" {
		icon = errorStyle.Render(iconDelete)
	}
	fmt.Printf("  %s %s %s %s\n",
		icon,
		entityStyle.Render(entity+"/"+id),
		subtitleStyle.Render(kind),
		valueStyle.Render(detail))
}
