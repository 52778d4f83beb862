package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/branchline/branchline/internal/presentation/tui"
	"github.com/branchline/branchline/pkg/audio"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
)

// PlayOptions configures an interactive play-through.
type PlayOptions struct {
	UserKey string
	StoryID string
	In      io.Reader
	Out     io.Writer

	// RendererOptions are passed to tui.NewRenderer.
	RendererOptions []tui.Option
	// Hooks are merged with the player's own lifecycle hooks.
	Hooks domain.LifecycleHooks
}

// Play runs the terminal player until the input ends, the user quits or ctx is cancelled.
// Progress is saved after every scene change.
func Play(ctx context.Context, rt *Runtime, opts PlayOptions) error {
	out := &lockedWriter{w: opts.Out}
	renderer := tui.NewRenderer(out, opts.RendererOptions...)

	coordinator := audio.NewCoordinator(&tui.AudioPlayer{Renderer: renderer}, audio.WithLogger(rt.Logger))
	defer coordinator.Close()

	entered := make(chan *domain.SceneEvent, 8)
	hooks := domain.LifecycleHooks{
		OnSceneEnter: func(_ context.Context, e *domain.SceneEvent) {
			select {
			case entered <- e:
			default:
			}
		},
		OnEndingDiscovered: func(_ context.Context, e *domain.SceneEvent) {
			renderer.EndingDiscovered(e.SceneID, e.EndingType)
		},
	}.Merge(coordinator.Hooks()).Merge(opts.Hooks)

	mgr := rt.NewManager(session.WithSessionOptions(session.WithLifecycleHooks(hooks)))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Warn("Pending saves did not finish", "err", err)
		}
	}()

	sess, err := mgr.Open(ctx, opts.UserKey, opts.StoryID)
	if err != nil {
		return err
	}
	drain(entered)

	if len(sess.State().ChoiceHistory) > 0 {
		printSystemMessage(out, "Resuming '%s' at '%s'.", opts.StoryID, sess.State().CurrentSceneID)
	}
	if err := renderer.Scene(sess.CurrentScene(), sess.State()); err != nil {
		return err
	}

	lines := readLines(ctx, opts.In)
	for {
		scene := sess.CurrentScene()
		renderer.Prompt(len(scene.Choices) > 0)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "exit":
			printSystemMessage(out, "Progress saved at '%s'.", sess.State().CurrentSceneID)
			return nil
		case "r", "restart":
			if _, err := mgr.Restart(ctx, opts.UserKey, opts.StoryID); err != nil {
				return err
			}
			drain(entered)
			if err := renderer.Scene(sess.CurrentScene(), sess.State()); err != nil {
				return err
			}
			continue
		}

		choiceID := resolveChoice(scene, line)
		res, err := mgr.SelectChoice(ctx, opts.UserKey, opts.StoryID, choiceID)
		if err != nil {
			return err
		}
		if res != session.ResultChoiceCommitted {
			renderer.Notice("No choice %q here.", line)
			continue
		}

		select {
		case <-entered:
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		}
		if err := renderer.Scene(sess.CurrentScene(), sess.State()); err != nil {
			return err
		}
	}
}

// resolveChoice maps a 1-based number to the choice id; anything else is taken as an id.
func resolveChoice(scene domain.Scene, input string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(scene.Choices) {
		return scene.Choices[n-1].ID
	}
	return input
}

func drain(ch <-chan *domain.SceneEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// readLines pumps lines from r into a channel closed at EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
