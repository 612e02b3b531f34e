// ABOUTME: The list command: the signed-in actor's conversations, newest activity first
// ABOUTME: With --watch the list is redrawn whenever a conversation or message arrives

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/bazaar-gateway/internal/dedupe"
	"github.com/2389/bazaar-gateway/internal/inbox"
	"github.com/2389/bazaar-gateway/internal/render"
)

const previewRunes = 60

var watchList bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := connect(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		window := dedupe.NewWindow(time.Minute, 0)
		defer window.Close()

		vm := inbox.New(inbox.Config{
			Store:    e.api,
			Resolver: e.api,
			Feed:     e.feed,
			Window:   window,
			Logger:   e.logger,
		})

		entries, err := vm.Load(ctx, e.actorID)
		if err != nil {
			return err
		}
		printInbox(os.Stdout, entries, time.Now())

		if !watchList {
			return nil
		}

		watchErr := make(chan error, 1)
		go func() { watchErr <- vm.Watch(ctx, e.actorID) }()

		for {
			select {
			case <-vm.Changes():
				fmt.Println()
				printInbox(os.Stdout, vm.Entries(), time.Now())
			case err := <-watchErr:
				return err
			}
		}
	},
}

func init() {
	listCmd.Flags().BoolVarP(&watchList, "watch", "w", false, "Keep running and redraw on new activity")
	rootCmd.AddCommand(listCmd)
}

func printInbox(w io.Writer, entries []inbox.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, color.HiBlackString("Chưa có cuộc trò chuyện nào"))
		return
	}

	bold := color.New(color.Bold)
	for _, e := range entries {
		preview := ""
		if e.LastMessage != nil {
			preview = render.Preview(e.LastMessage.Content, previewRunes)
		}
		bold.Fprint(w, e.DisplayName())
		fmt.Fprintf(w, "  %s\n", color.HiBlackString(inbox.RelativeLabel(now, e.LastActivity())))
		fmt.Fprintf(w, "  %s  %s\n", color.CyanString(e.Conversation.ID), preview)
	}
}
