package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/memoboard/pkg/broadcast"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &client{http: &http.Client{Timeout: time.Second * 30}, out: os.Stdout}
	server := os.Getenv("MEMOBOARD_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:           "memoboard",
		Short:         "Read, write and watch memo boards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(server)
			if err != nil {
				return err
			}
			c.baseUrl = u
			c.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&server, "server", server, "the server base url (env MEMOBOARD_SERVER)")

	root.AddCommand(
		&cobra.Command{
			Use:   "list BOARD",
			Short: "List the memos on a board, creating the board if needed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.list(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "add BOARD [key=value...]",
			Short: "Add a memo to a board",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.add(cmd.Context(), args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "edit ID key=value...",
			Short: "Overwrite fields of a memo, a null value removes the field",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.edit(cmd.Context(), args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "rm BOARD ID",
			Short: "Delete a memo",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.remove(cmd.Context(), args[0], args[1])
			},
		},
		newWatchCmd(c),
	)
	return root
}

func newWatchCmd(c *client) *cobra.Command {
	var boards, memos []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print changes to the given boards and memos as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := make([]string, 0, len(boards)+len(memos))
			for _, b := range boards {
				topics = append(topics, broadcast.BoardTopic(b))
			}
			for _, m := range memos {
				topics = append(topics, broadcast.MemoTopic(m))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			c.watchContinuously(ctx, topics)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&boards, "board", nil, "a board to watch for added and deleted memos")
	cmd.Flags().StringSliceVar(&memos, "memo", nil, "a memo id to watch for updates")
	cmd.MarkFlagsOneRequired("board", "memo")
	return cmd
}
