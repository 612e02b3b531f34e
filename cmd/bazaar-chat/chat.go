// ABOUTME: The open and chat commands: an interactive session on one conversation
// ABOUTME: Lines typed on stdin are sent; confirmed messages from either side are printed once

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/bazaar-gateway/internal/chat"
	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/inbox"
)

var openCmd = &cobra.Command{
	Use:   "open COUNTERPART",
	Short: "Chat with a user, starting a conversation if there is none",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := connect(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		vm := inbox.New(inbox.Config{Store: e.api, Resolver: e.api, Logger: e.logger})
		if _, err := vm.Load(ctx, e.actorID); err != nil {
			return err
		}
		conversationID, err := vm.OpenOrCreateByCounterpart(ctx, e.actorID, args[0])
		if err != nil {
			return err
		}
		return runSession(ctx, e, conversationID, os.Stdin, os.Stdout)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat CONVERSATION_ID",
	Short: "Chat in an existing conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := connect(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return runSession(ctx, e, args[0], os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(chatCmd)
}

// runSession chats until stdin ends, ctx is cancelled or the identity signs out.
func runSession(ctx context.Context, e *env, conversationID string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.identity.OnAuthChange(func(actorID string) {
		if actorID == "" {
			cancel()
		}
	})

	session, err := chat.Open(ctx, chat.Config{
		ConversationID: conversationID,
		Store:          e.api,
		Profiles:       e.api,
		Feed:           e.feed,
		Identity:       e.identity,
		Logger:         e.logger,
	})
	if err != nil {
		if dm.IsNotFound(err) {
			return fmt.Errorf("conversation %s not found", conversationID)
		}
		return err
	}
	defer session.Close()

	name := session.Conversation().Counterpart(e.actorID)
	if cp := session.Counterpart(); cp != nil && cp.DisplayName != "" {
		name = cp.DisplayName
	}
	fmt.Fprintln(out, color.New(color.Bold).Sprintf("── %s ──", name))

	p := &transcript{out: out, actorID: e.actorID, printed: make(map[string]bool)}
	p.print(session.Messages())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if _, ok := e.identity.CurrentActor(); !ok {
				fmt.Fprintln(out, color.HiBlackString("signed out"))
			}
			return nil
		case <-session.Changes():
			p.print(session.Messages())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := session.Send(ctx, line)
			var sendErr *chat.SendError
			switch {
			case err == nil:
			case errors.As(err, &sendErr):
				fmt.Fprintf(out, "%s %s\n", color.RedString("✗ not sent:"), sendErr.Entry.Content)
			case errors.Is(err, dm.ErrInvalidOperation):
				// blank line
			default:
				return err
			}
			p.print(session.Messages())
		}
	}
}

// transcript prints each confirmed message exactly once.
type transcript struct {
	out     io.Writer
	actorID string
	printed map[string]bool
}

func (p *transcript) print(entries []chat.Entry) {
	for _, entry := range entries {
		if entry.State != chat.StateConfirmed || p.printed[entry.ID] {
			continue
		}
		p.printed[entry.ID] = true

		who := entry.SenderID
		if entry.Sender != nil && entry.Sender.DisplayName != "" {
			who = entry.Sender.DisplayName
		}
		label := color.GreenString(who)
		if entry.SenderID == p.actorID {
			label = color.CyanString("you")
		}
		fmt.Fprintf(p.out, "%s %s: %s\n",
			color.HiBlackString(entry.SentAt.Local().Format("15:04")), label, entry.Content)
	}
}
