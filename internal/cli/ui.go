package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan  = lipgloss.Color("36")  // Teal - ids
	colorGreen = lipgloss.Color("35")  // Green - success
	colorBlue  = lipgloss.Color("75")  // Light blue - commands
	colorWhite = lipgloss.Color("255") // Bright white - values
	colorGray  = lipgloss.Color("245") // Gray - labels
	colorDim   = lipgloss.Color("240") // Dim gray - muted text
)

const (
	iconSuccess = "✓"
	iconInfo    = "›"
)

// printSuccess prints a success message.
func (c *CLI) printSuccess(format string, args ...any) {
	icon := c.renderer.NewStyle().Foreground(colorGreen).Render(iconSuccess)
	fmt.Fprintln(c.out, icon+" "+fmt.Sprintf(format, args...))
}

// printInfo prints an info/status message.
func (c *CLI) printInfo(format string, args ...any) {
	icon := c.renderer.NewStyle().Foreground(colorGray).Render(iconInfo)
	fmt.Fprintln(c.out, icon+" "+fmt.Sprintf(format, args...))
}

// printKeyValue prints a labeled value.
func (c *CLI) printKeyValue(key, value string) {
	keyStyle := c.renderer.NewStyle().Foreground(colorGray).Width(12)
	valueStyle := c.renderer.NewStyle().Foreground(colorWhite)
	fmt.Fprintln(c.out, keyStyle.Render(key)+" "+valueStyle.Render(value))
}

// printRow prints one entity of a listing: its id followed by its fields.
func (c *CLI) printRow(id int64, fields ...string) {
	line := c.renderer.NewStyle().Foreground(colorCyan).Width(6).Render(strconv.FormatInt(id, 10))
	for _, f := range fields {
		line += " " + f
	}
	fmt.Fprintln(c.out, line)
}

// printNextStep prints a suggested next command.
func (c *CLI) printNextStep(description, cmd string) {
	dim := c.renderer.NewStyle().Foreground(colorDim)
	command := c.renderer.NewStyle().Foreground(colorBlue)
	fmt.Fprintln(c.out, dim.Render(description+":")+" "+command.Render(cmd))
}

// printJSON writes v as indented JSON, unstyled so it can be piped.
func (c *CLI) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
