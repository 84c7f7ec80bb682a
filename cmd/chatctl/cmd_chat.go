package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ahmetk3436/duochat/internal/client"
	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Long:  `Send one message, either to a new conversation or to the one given with --conversation.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat",
	Long: `Start an interactive chat. Lines are sent as messages; these commands
are understood as well:

  /new             start a new conversation
  /open <id>       switch to an existing conversation
  /rename <title>  rename the current conversation
  /delete          delete the current conversation
  /quit            leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	sendCmd.Flags().StringP("conversation", "c", "", "Conversation to continue")
	chatCmd.Flags().StringP("conversation", "c", "", "Conversation to continue")
}

func newSession() *client.Session {
	return client.NewSession(api, client.SessionOptions{
		Model:   profile.Model,
		Backend: profile.Backend,
		OnTitle: func(id, title string, err error) {
			if err == nil {
				fmt.Fprintf(os.Stderr, "\n(conversation %s titled %q)\n", id, title)
			}
		},
	})
}

func runSend(cmd *cobra.Command, args []string) error {
	s := newSession()
	defer s.WaitTitles()

	if id, _ := cmd.Flags().GetString("conversation"); id != "" {
		if err := s.Select(cmd.Context(), id); err != nil {
			return err
		}
	}

	reply, err := s.Submit(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(reply.Content)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s := newSession()
	defer s.WaitTitles()

	if id, _ := cmd.Flags().GetString("conversation"); id != "" {
		if err := s.Select(ctx, id); err != nil {
			return err
		}
		for _, m := range s.Messages() {
			printMessage(m.Message)
		}
	}

	fmt.Printf("chatting with %s backend", profile.Backend)
	if profile.Model != "" {
		fmt.Printf(" (%s)", profile.Model)
	}
	fmt.Println(", /quit to leave")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, s, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		reply, err := s.Submit(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Printf("\n%s\n\n", reply.Content)
	}
}

func chatCommand(ctx context.Context, s *client.Session, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		return false, s.New()
	case "/open":
		if arg == "" {
			return false, errs.Invalid("usage: /open <id>")
		}
		if err := s.Select(ctx, arg); err != nil {
			return false, err
		}
		for _, m := range s.Messages() {
			printMessage(m.Message)
		}
		return false, nil
	case "/rename":
		if arg == "" {
			return false, errs.Invalid("usage: /rename <title>")
		}
		return false, s.Rename(ctx, arg)
	case "/delete":
		conv := s.Conversation()
		if conv == nil {
			return false, errs.Invalid("no conversation selected")
		}
		return false, s.Delete(ctx, conv.ID.String())
	}
	return false, fmt.Errorf("unknown command %s", name)
}
