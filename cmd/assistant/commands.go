package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"citizen-assistant/internal/usecase"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send messages to the assistant",
		Long: `Send one message, or read one message per line from stdin when no
message is given. Each reply is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			send := func(msg string) error {
				out, err := e.app.Assistant.ProcessMessage(cmd.Context(), usecase.MessageInput{UserID: opts.userID, Message: msg})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			if len(args) > 0 {
				return send(strings.Join(args, " "))
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := send(line); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation for --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			conv, err := e.app.Assistant.GetHistory(cmd.Context(), opts.userID)
			if err != nil {
				return err
			}
			if conv == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no conversation for %s\n", opts.userID)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), conv)
		},
	}
}

func newActionCmd(opts *rootOptions) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "action <name>",
		Short: "Dispatch a named action for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any
			if data != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}
			e, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.app.Assistant.DispatchAction(cmd.Context(), usecase.ActionInput{UserID: opts.userID, Action: args[0], Data: payload})
			if usecase.CodeOf(err) == usecase.ErrorUnknownAction {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON object passed as action data")
	return cmd
}
