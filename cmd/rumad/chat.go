package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	chatUserID  string
	chatID      string
	chatUrgency string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send one message to a running rumad serve and stream the reply",
	Long: `Without an argument, chat reads a REPL loop from stdin. With one
argument, it sends that single message and exits after the reply.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		client := newControlClient(a)

		if len(args) == 1 {
			return sendChatTurn(client, args[0])
		}
		return chatREPL(client)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUserID, "user", "default", "user id")
	chatCmd.Flags().StringVar(&chatID, "chat", "", "existing chat/session id, blank starts a new one")
	chatCmd.Flags().StringVar(&chatUrgency, "urgency", "normal", "retrieval urgency: instant, normal or comprehensive")
}

func chatREPL(client *controlClient) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("rumad chat - ctrl+d to exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := sendChatTurn(client, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func sendChatTurn(client *controlClient, message string) error {
	resp, err := client.do("POST", "/api/chat", map[string]string{
		"user_id": chatUserID,
		"chat_id": chatID,
		"message": message,
		"urgency": chatUrgency,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return streamSSE(resp.Body, func(evt sseEvent) bool {
		switch evt.name {
		case "token":
			var payload struct {
				Token string `json:"token"`
			}
			if json.Unmarshal([]byte(evt.data), &payload) == nil {
				fmt.Print(payload.Token)
			}
		case "done":
			fmt.Println()
			var msg struct {
				SessionID string `json:"session_id"`
			}
			if json.Unmarshal([]byte(evt.data), &msg) == nil && msg.SessionID != "" {
				chatID = msg.SessionID
			}
			return false
		case "error":
			fmt.Fprintln(os.Stderr, "\nerror:", evt.data)
			return false
		}
		return true
	})
}
