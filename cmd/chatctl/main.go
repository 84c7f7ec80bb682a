package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ahmetk3436/duochat/internal/client"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	profilePath string
	profile     *client.Profile
	api         *client.APIClient
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command-line client for a duochat server",
	Long: `chatctl talks to a duochat server: it lists and manages conversations
and chats with either the local or the routed backend.

Examples:
  chatctl chat --model gemma3:4b
  chatctl send --backend routed "Summarise the Go memory model"
  chatctl list --search photosynthesis
  chatctl rename <id> "Trip planning"`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadProfile,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(checkKeyCmd)
	rootCmd.AddCommand(loginCmd)

	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", client.DefaultProfilePath(), "Profile file")
	rootCmd.PersistentFlags().String("server", "", "Server API base URL (overrides profile)")
	rootCmd.PersistentFlags().String("token", "", "Access token (overrides profile)")
	rootCmd.PersistentFlags().String("model", "", "Model name (overrides profile)")
	rootCmd.PersistentFlags().String("backend", "", "Backend: local or routed (overrides profile)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout (overrides profile)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// loadProfile merges the profile file with flag overrides and builds the
// API client shared by every command.
func loadProfile(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	p, err := client.LoadProfile(profilePath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("server"); v != "" {
		p.Server = v
	}
	if v, _ := flags.GetString("token"); v != "" {
		p.Token = v
	}
	if v, _ := flags.GetString("model"); v != "" {
		p.Model = v
	}
	if v, _ := flags.GetString("backend"); v != "" {
		p.Backend = models.Backend(v)
	}
	if v, _ := flags.GetDuration("timeout"); v > 0 {
		p.Timeout = v
	}
	if !p.Backend.Valid() {
		return fmt.Errorf("backend %q is not one of local, routed", p.Backend)
	}
	if p.Timeout <= 0 {
		p.Timeout = 2 * time.Minute
	}

	profile = p
	api = client.NewAPIClient(p.Server, p.Token, p.Timeout)
	return nil
}
