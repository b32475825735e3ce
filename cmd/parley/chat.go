package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/parley-ai/parley"
	"github.com/parley-ai/parley/pkg/chat"
	"github.com/parley-ai/parley/pkg/record"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the assistant service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			stopMetrics := startMetrics(app.Config())
			defer stopMetrics(context.Background())

			var sess *record.Session
			if sessionID != "" {
				sess, err = app.ResumeSession(ctx, sessionID)
			} else {
				sess, err = app.NewSession(ctx, "")
			}
			if err != nil {
				return err
			}

			return runREPL(ctx, app, sess)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session by id")
	return cmd
}

func runREPL(ctx context.Context, app *parley.App, sess *record.Session) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("session %s (user %s). Commands: /new, /sessions, /quit\n", sess.ID, sess.UserID)

	render := &renderer{}

	var mu sync.Mutex
	client := app.Chat(sess, chat.WithUpdates(render.update))

	// Ctrl-C during a turn cancels the turn rather than the process;
	// at the prompt liner swallows it and clears the line.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			mu.Lock()
			client.Cancel()
			mu.Unlock()
		}
	}()

	for {
		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := runCommand(ctx, app, input, &mu, &client, &sess, render)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		render.reset()
		msg, err := client.Send(ctx, input)
		if err != nil {
			if errors.Is(err, chat.ErrTurnInFlight) {
				fmt.Println("a turn is already in flight")
				continue
			}
			return err
		}
		render.finish(msg)
	}
}

func runCommand(ctx context.Context, app *parley.App, input string, mu *sync.Mutex, client **chat.Client, sess **record.Session, render *renderer) (quit bool, err error) {
	switch input {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		newSess, err := app.NewSession(ctx, "")
		if err != nil {
			return false, err
		}
		mu.Lock()
		*sess = newSess
		*client = app.Chat(newSess, chat.WithUpdates(render.update))
		mu.Unlock()
		fmt.Printf("session %s\n", newSess.ID)

	case "/sessions":
		sessions, err := app.Sessions(ctx, record.ListOptions{Limit: 20})
		if err != nil {
			return false, err
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
		}

	default:
		fmt.Printf("unknown command %s\n", input)
	}
	return false, nil
}

// renderer prints streamed content as it arrives. Content normally
// grows, but a summary may replace the agent text wholesale; in that
// case the replacement starts on a fresh line.
type renderer struct {
	shown string
}

func (r *renderer) reset() {
	r.shown = ""
}

func (r *renderer) update(content string) {
	if strings.HasPrefix(content, r.shown) {
		fmt.Print(content[len(r.shown):])
	} else {
		fmt.Print("\n" + content)
	}
	r.shown = content
}

func (r *renderer) finish(msg *record.Message) {
	if msg.Status == record.StatusError {
		if r.shown != "" {
			fmt.Println()
		}
		fmt.Printf("error: %s\n", msg.ErrorMessage)
		return
	}
	if msg.Content != r.shown {
		r.update(msg.Content)
	}
	fmt.Println()
}
