package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently active first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	Short:   "Delete conversations and their messages",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRm,
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRename,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream conversation changes as JSON lines",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	listCmd.Flags().StringP("search", "s", "", "Only conversations whose title or messages contain this text")
	showCmd.Flags().Bool("json", false, "Print the raw JSON")
}

func runList(cmd *cobra.Command, _ []string) error {
	query, _ := cmd.Flags().GetString("search")

	var (
		convs []models.Conversation
		err   error
	)
	if query != "" {
		convs, err = api.SearchConversations(cmd.Context(), query)
	} else {
		convs, err = api.ListConversations(cmd.Context())
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tBACKEND\tMODEL\tUPDATED")
	for _, c := range convs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Title, c.Backend, c.Model, c.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	detail, err := api.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	fmt.Printf("# %s\n\n", detail.Conversation.Title)
	for _, m := range detail.Messages {
		printMessage(m)
	}
	return nil
}

func printMessage(m models.Message) {
	label := string(m.Role)
	if m.Model != "" {
		label += " (" + m.Model + ")"
	}
	fmt.Printf("[%s] %s\n%s\n\n", m.CreatedAt.Local().Format(time.TimeOnly), label, m.Content)
}

func runRm(cmd *cobra.Command, args []string) error {
	for _, id := range args {
		if err := api.DeleteConversation(cmd.Context(), id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Println("deleted", id)
	}
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	conv, err := api.RenameConversation(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("%s renamed to %q\n", conv.ID, conv.Title)
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	events, err := api.Events(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
