package models

import (
	"fmt"
	"strings"
)

// Theme is a room attribute, never a user one.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeDark    Theme = "dark"
	ThemeSlate   Theme = "slate"
	ThemeBlue    Theme = "blue"
	ThemeGreen   Theme = "green"
	ThemePurple  Theme = "purple"
	ThemePink    Theme = "pink"
)

var Palette = []Theme{ThemeDefault, ThemeDark, ThemeSlate, ThemeBlue, ThemeGreen, ThemePurple, ThemePink}

func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ThemeDefault, nil
	}
	for _, p := range Palette {
		if p == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// OrDefault maps an empty or off-palette theme to ThemeDefault.
func (t Theme) OrDefault() Theme {
	if parsed, err := ParseTheme(string(t)); err == nil {
		return parsed
	}
	return ThemeDefault
}
