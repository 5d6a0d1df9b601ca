package render

import (
	"sort"

	"github.com/fatih/color"
)

const DefaultTheme = "light"

// Theme is the palette for one board style.
type Theme struct {
	Name      string
	Header    *color.Color
	Text      *color.Color
	Muted     *color.Color
	Available *color.Color
	Occupied  *color.Color
	Warning   *color.Color
	Danger    *color.Color
	Expired   *color.Color
}

var themes = map[string]func() Theme{
	"light": func() Theme {
		return Theme{
			Name:      "light",
			Header:    color.New(color.FgBlue, color.Bold),
			Text:      color.New(color.FgBlack),
			Muted:     color.New(color.FgHiBlack),
			Available: color.New(color.FgGreen),
			Occupied:  color.New(color.FgBlue),
			Warning:   color.New(color.FgYellow),
			Danger:    color.New(color.FgRed),
			Expired:   color.New(color.FgRed, color.Bold),
		}
	},
	"dark": func() Theme {
		return Theme{
			Name:      "dark",
			Header:    color.New(color.FgHiCyan, color.Bold),
			Text:      color.New(color.FgHiWhite),
			Muted:     color.New(color.FgWhite),
			Available: color.New(color.FgHiGreen),
			Occupied:  color.New(color.FgHiCyan),
			Warning:   color.New(color.FgHiYellow),
			Danger:    color.New(color.FgHiRed),
			Expired:   color.New(color.FgHiRed, color.Bold, color.BlinkSlow),
		}
	},
}

// ThemeNames lists the available themes in sorted order.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupTheme returns the named theme, falling back to the default.
func LookupTheme(name string) Theme {
	build, ok := themes[name]
	if !ok {
		build = themes[DefaultTheme]
	}
	return build()
}

func (t Theme) colors() []*color.Color {
	return []*color.Color{t.Header, t.Text, t.Muted, t.Available, t.Occupied, t.Warning, t.Danger, t.Expired}
}

func (t Theme) disable() Theme {
	for _, c := range t.colors() {
		c.DisableColor()
	}
	return t
}
