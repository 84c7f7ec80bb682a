package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ahmetk3436/duochat/internal/client"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed on the local backend",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var checkKeyCmd = &cobra.Command{
	Use:   "check-key <NAME>",
	Short: "Report whether the server has an environment variable set",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckKey,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token in the profile",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().StringP("username", "u", "admin", "Username")
	loginCmd.Flags().StringP("password", "p", "", "Password (read from stdin when omitted)")
}

func runModels(cmd *cobra.Command, _ []string) error {
	raw, err := api.LocalModels(cmd.Context())
	if err != nil {
		return err
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &tags); err != nil || len(tags.Models) == 0 {
		var out bytes.Buffer
		if json.Indent(&out, raw, "", "  ") != nil {
			out.Write(raw)
		}
		fmt.Println(out.String())
		return nil
	}
	for _, m := range tags.Models {
		fmt.Println(m.Name)
	}
	return nil
}

func runCheckKey(cmd *cobra.Command, args []string) error {
	has, err := api.CheckKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if has {
		fmt.Printf("%s is set\n", args[0])
	} else {
		fmt.Printf("%s is not set\n", args[0])
	}
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	tokens, err := api.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}

	profile.Token = tokens.AccessToken
	if err := client.SaveProfile(profilePath, profile); err != nil {
		return err
	}
	fmt.Printf("logged in as %s, token saved to %s\n", username, profilePath)
	return nil
}
