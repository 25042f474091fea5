// difyctl is a small operator CLI against the dify-api HTTP surface: app
// management, api key issuance and health checks.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Token     string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	cli := &client{
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}

	root := &cobra.Command{
		Use:   "difyctl",
		Short: "Operator CLI for the dify console API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cli.Token == "" {
				cli.Token = os.Getenv("DIFY_ACCESS_TOKEN")
			}
		},
	}
	root.PersistentFlags().StringVar(&cli.BaseURL, "url", envOr("DIFY_API_URL", "http://localhost:5001"), "base URL del servicio")
	root.PersistentFlags().StringVar(&cli.Token, "token", "", "console access token (o DIFY_ACCESS_TOKEN)")
	root.PersistentFlags().StringVarP(&cli.OutFormat, "output", "o", "json", "formato de salida: json|text")

	root.AddCommand(healthCmd(cli), appsCmd(cli), keysCmd(cli))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func healthCmd(cli *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("GET", "/readyz", nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	}
	return cmd
}

func appsCmd(cli *client) *cobra.Command {
	apps := &cobra.Command{Use: "apps", Short: "Manage apps"}

	apps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List apps of the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("GET", "/v1/apps", nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	})

	var mode, description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _ := json.Marshal(map[string]string{
				"name":        args[0],
				"mode":        mode,
				"description": description,
			})
			status, body, err := cli.do("POST", "/v1/apps", payload)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	}
	create.Flags().StringVar(&mode, "mode", "chat", "app mode: chat|agent-chat|advanced-chat|workflow|completion")
	create.Flags().StringVar(&description, "description", "", "app description")
	apps.AddCommand(create)

	apps.AddCommand(&cobra.Command{
		Use:   "delete <app-id>",
		Short: "Delete an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("DELETE", "/v1/apps/"+args[0], nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	})

	return apps
}

func keysCmd(cli *client) *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage app API keys"}

	keys.AddCommand(&cobra.Command{
		Use:   "issue <app-id>",
		Short: "Issue a new API key (the token is only shown once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("POST", "/v1/apps/"+args[0]+"/api-keys", nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "list <app-id>",
		Short: "List API keys of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("GET", "/v1/apps/"+args[0]+"/api-keys", nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "revoke <app-id> <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cli.do("DELETE", "/v1/apps/"+args[0]+"/api-keys/"+args[1], nil)
			if err != nil {
				return err
			}
			cli.print(status, body)
			return nil
		},
	})

	return keys
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
