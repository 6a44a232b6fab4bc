package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"event-coordinator/internal/repository"
	"event-coordinator/internal/usecase"
)

func (c *cli) listCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeDB, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			summaries := store.List(cmd.Context(), c.cfg.TenantID(), limit, offset)
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPHASE\tMESSAGES\tUPDATED\tLAST MESSAGE")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ConversationID, s.Phase, s.MessageCount, s.UpdatedAt.Format(time.RFC3339), s.LastMessage)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of conversations (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of conversations to skip")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation's visible messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			st, ok := store.Get(cmd.Context(), args[0], c.cfg.TenantID())
			if !ok {
				return fmt.Errorf("conversation %q not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation %s (%s)\n", st.ConversationID, st.Phase)
			for _, m := range st.VisibleMessages() {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
			}
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if !store.Delete(cmd.Context(), args[0], c.cfg.TenantID()) {
				return fmt.Errorf("conversation %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Write every conversation back to the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeDB, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.ForceSyncAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sync complete.")
			return nil
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message through the coordinator and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := repository.OpenSQLite(c.cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := c.buildService(cmd.Context(), c.cfg, db)
			if err != nil {
				return err
			}
			out, err := svc.Conversations.ProcessTurn(cmd.Context(), usecase.TurnInput{
				ConversationID: conversationID,
				TenantID:       c.cfg.TenantID(),
				Message:        strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.AssistantText)
			fmt.Fprintf(cmd.OutOrStdout(), "\nconversation: %s\n", out.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to continue (new when empty)")
	return cmd
}
