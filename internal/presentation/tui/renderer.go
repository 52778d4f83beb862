package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultWidth = 80

// NewMarkdown returns a function that renders markdown using glamour, wrapped at width.
// A width of zero disables wrapping.
func NewMarkdown(width int) func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or a default when it is not a terminal.
func Width(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Renderer prints scenes and play-through status to a terminal.
type Renderer struct {
	out      io.Writer
	output   *termenv.Output
	markdown func(string) (string, error)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMarkdown replaces the markdown renderer. Tests use it to get plain output.
func WithMarkdown(fn func(string) (string, error)) Option {
	return func(r *Renderer) {
		r.markdown = fn
	}
}

// WithProfile forces a color profile, e.g. termenv.Ascii for plain text.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) {
		r.output = termenv.NewOutput(r.out, termenv.WithProfile(p))
	}
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		out:    w,
		output: termenv.NewOutput(w),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.markdown == nil {
		width := defaultWidth
		if f, ok := w.(*os.File); ok {
			width = Width(f)
		}
		r.markdown = NewMarkdown(width)
	}
	return r
}

// SceneMarkdown formats a scene and its numbered choices as markdown.
func SceneMarkdown(scene domain.Scene, state *domain.SessionState) string {
	var sb strings.Builder
	title := scene.Title
	if title == "" {
		title = scene.ID
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if scene.Text != "" {
		sb.WriteString(strings.TrimSpace(scene.Text))
		sb.WriteString("\n\n")
	}

	if scene.IsEnding {
		kind := string(scene.EndingType)
		if kind == "" {
			kind = "an"
		}
		fmt.Fprintf(&sb, "**The End** (%s ending)\n\n", kind)
	}
	for i, c := range scene.Choices {
		fmt.Fprintf(&sb, "%d. %s", i+1, c.Text)
		if c.ConsequenceHint != "" {
			fmt.Fprintf(&sb, " _(%s)_", c.ConsequenceHint)
		}
		sb.WriteString("\n")
	}

	if state != nil {
		fmt.Fprintf(&sb, "\n---\n\nProgress: %d%% · choices made: %d · endings found: %d\n",
			state.CompletionPercentage, state.TotalChoicesMade, state.DiscoveredEndings.Len())
	}
	return sb.String()
}

// Scene renders scene through glamour.
func (r *Renderer) Scene(scene domain.Scene, state *domain.SessionState) error {
	out, err := r.markdown(SceneMarkdown(scene, state))
	if err != nil {
		return fmt.Errorf("failed to render scene %q: %w", scene.ID, err)
	}
	_, err = fmt.Fprint(r.out, out)
	return err
}

// Audio prints an audio cue.
func (r *Renderer) Audio(cmd domain.AudioCommand) {
	switch cmd.Type {
	case domain.AudioPlayTrack:
		fmt.Fprintln(r.out, r.output.String("♪ now playing "+cmd.URL).Foreground(r.output.Color("#818cf8")).Italic())
	case domain.AudioStop:
		fmt.Fprintln(r.out, r.output.String("♪ silence").Faint())
	}
}

// EndingDiscovered announces a newly found ending.
func (r *Renderer) EndingDiscovered(sceneID string, kind domain.EndingType) {
	color := "#a78bfa"
	switch kind {
	case domain.EndingGood:
		color = "#34d399"
	case domain.EndingBad:
		color = "#fb7185"
	}
	msg := fmt.Sprintf("★ New ending discovered: %s", sceneID)
	if kind != "" {
		msg += fmt.Sprintf(" (%s)", kind)
	}
	fmt.Fprintln(r.out, r.output.String(msg).Foreground(r.output.Color(color)).Bold())
}

// Notice prints a dim status line.
func (r *Renderer) Notice(format string, args ...any) {
	fmt.Fprintln(r.out, r.output.String(fmt.Sprintf(format, args...)).Faint())
}

// Prompt prints the input prompt without a newline.
func (r *Renderer) Prompt(canChoose bool) {
	if canChoose {
		fmt.Fprint(r.out, r.output.String("choose [number], (r)estart, (q)uit > ").Bold())
		return
	}
	fmt.Fprint(r.out, r.output.String("(r)estart, (q)uit > ").Bold())
}
