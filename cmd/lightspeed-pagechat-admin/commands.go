package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/tcriess/lightspeed-pagechat/globals"
)

const defaultServer = "http://localhost:8000"

type apiClient struct {
	server string
	http   *http.Client
}

// get fetches path from the admin API and copies the indented JSON body to out.
func (c *apiClient) get(path string, out io.Writer) error {
	resp, err := c.http.Get(strings.TrimRight(c.server, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if m, ok := body.(map[string]interface{}); ok {
			return fmt.Errorf("%s: %v", resp.Status, m["error"])
		}
		return fmt.Errorf("%s", resp.Status)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

func newRootCmd(out io.Writer) *cobra.Command {
	client := &apiClient{http: &http.Client{Timeout: 10 * time.Second}}
	var logLevel string

	var rootCmd = &cobra.Command{
		Use:          "lightspeed-pagechat-admin",
		Short:        "Inspect the rooms of a running lightspeed-pagechat server",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			globals.AppLogger.SetLevel(hclog.LevelFromString(logLevel))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&client.server, "server", "s", defaultServer, "base url of the server")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "WARN", "log level")

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms",
		Long:  `show is for printing room information.`,
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all live rooms with their member counts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			globals.AppLogger.Debug("listing rooms", "server", client.server)
			return client.get("/api/rooms", out)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints the members and presence of the room with the given id. Page rooms are addressed by their normalized url.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get("/api/rooms/"+url.PathEscape(args[0]), out)
		},
	}
	var cmdNormalize = &cobra.Command{
		Use:   "normalize [url]",
		Short: "Normalize a page url",
		Long:  `normalize prints the room key a page url maps to and the id of the live room for it, if any.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get("/api/normalize?url="+url.QueryEscape(args[0]), out)
		},
	}
	var cmdHealth = &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get("/healthz", out)
		},
	}
	rootCmd.AddCommand(cmdShow, cmdNormalize, cmdHealth)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom)
	return rootCmd
}
