package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the branchline banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Subtle gradient (Indigo/Violet)
	lines := []struct{ text, color string }{
		{` _                         _     _ _            `, "#818cf8"},
		{`| |__  _ __ __ _ _ __   ___| |__ | (_)_ __   ___ `, "#a78bfa"},
		{`| '_ \| '__/ _' | '_ \ / __| '_ \| | | '_ \ / _ \`, "#c084fc"},
		{`| |_) | | | (_| | | | | (__| | | | | | | | |  __/`, "#e879f9"},
		{`|_.__/|_|  \__,_|_| |_|\___|_| |_|_|_|_| |_|\___|`, "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
