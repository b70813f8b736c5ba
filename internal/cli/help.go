package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000")).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Italic(true)
)

// HelpSection is a titled two-column block printed after the flags, such as
// the settings-file keys or the exit codes.
type HelpSection struct {
	Title string
	Rows  []HelpRow
}

// HelpRow is one entry of a HelpSection.
type HelpRow struct {
	Name string
	Help string
}

// StyledHelpPrinter renders help with Lipgloss styling. Flags are listed under
// the title of their kong group, in the order groups first appear; ungrouped
// flags come first under "Flags". Extra sections follow the flags.
func StyledHelpPrinter(description string, sections ...HelpSection) kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render("Peaqer 🎧"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render(description))
		sb.WriteString("\n")

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(usageLine(ctx))
		sb.WriteString("\n")

		var args []HelpRow
		for _, arg := range ctx.Model.Node.Positional {
			args = append(args, HelpRow{Name: arg.Summary(), Help: arg.Help})
		}
		writeRows(&sb, "Arguments:", args, helpArgStyle)

		for _, group := range flagGroups(ctx.Model.Node.Flags) {
			writeRows(&sb, group.Title+":", group.Rows, helpFlagStyle)
		}

		for _, section := range sections {
			writeRows(&sb, section.Title+":", section.Rows, helpArgStyle)
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

func usageLine(ctx *kong.Context) string {
	usage := ctx.Model.Name + " [flags]"
	for _, arg := range ctx.Model.Node.Positional {
		usage += " " + arg.Summary()
	}
	return usage
}

// writeRows writes a section whose help column starts at the same offset on
// every row.
func writeRows(sb *strings.Builder, title string, rows []HelpRow, nameStyle lipgloss.Style) {
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row.Name))
	}

	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(title))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString("  ")
		sb.WriteString(nameStyle.Render(row.Name))
		if row.Help != "" {
			sb.WriteString(strings.Repeat(" ", width-lipgloss.Width(row.Name)+2))
			sb.WriteString(row.Help)
		}
		sb.WriteString("\n")
	}
}

type flagGroup struct {
	Title string
	Rows  []HelpRow
}

// flagGroups collects visible flags by kong group. Help itself is listed
// with the ungrouped flags.
func flagGroups(flags []*kong.Flag) []flagGroup {
	groups := []flagGroup{{
		Title: "Flags",
		Rows:  []HelpRow{{Name: "-h, --help", Help: "Show context-sensitive help."}},
	}}
	index := map[string]int{"": 0}

	for _, f := range flags {
		if f.Hidden || f.Name == "help" {
			continue
		}
		key, title := "", ""
		if f.Group != nil {
			key, title = f.Group.Key, f.Group.Title
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, flagGroup{Title: title})
		}
		groups[i].Rows = append(groups[i].Rows, HelpRow{Name: flagName(f), Help: flagHelp(f)})
	}
	return groups
}

func flagName(f *kong.Flag) string {
	name := "--" + f.Name
	if f.Short != 0 {
		name = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	}
	if !f.IsBool() {
		placeholder := f.PlaceHolder
		if placeholder == "" {
			placeholder = strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		}
		name += "=" + placeholder
	}
	return name
}

func flagHelp(f *kong.Flag) string {
	help := f.Help
	if f.Enum != "" {
		help += " " + helpDefaultStyle.Render("(one of: "+strings.ReplaceAll(f.Enum, ",", ", ")+")")
	}
	if f.Default != "" && !f.IsBool() {
		help += " " + helpDefaultStyle.Render("(default: "+f.Default+")")
	}
	return help
}
