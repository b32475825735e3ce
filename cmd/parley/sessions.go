package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/pkg/record"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(flags),
		newSessionsShowCmd(flags),
		newSessionsDeleteCmd(flags),
	)
	return cmd
}

func newSessionsListCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			sessions, err := app.Sessions(cmd.Context(), record.ListOptions{Limit: limit})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sessions (0 = all)")
	return cmd
}

func newSessionsShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			sess, err := app.ResumeSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			messages, err := app.Messages(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s\n\n", sess.ID, sess.Title)
			for _, m := range messages {
				switch {
				case m.Status == record.StatusError:
					fmt.Printf("[%s] (error: %s) %s\n", m.Role, m.ErrorMessage, m.Content)
				default:
					fmt.Printf("[%s] %s\n", m.Role, m.Content)
				}
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			if err := app.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
