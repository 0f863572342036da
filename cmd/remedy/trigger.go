package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var triggerAddr string

var triggerCmd = &cobra.Command{
	Use:   "trigger [reason]",
	Short: "Trigger a manual healing intervention",
	Long: `Ask a running remedy daemon to queue a manual intervention.
The daemon must be running and serving on its configured listen address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := triggerAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}

		body := map[string]interface{}{}
		if len(args) > 0 {
			body["reason"] = strings.Join(args, " ")
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post("http://"+addr+"/trigger", "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s (is it running?): %w", addr, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		var out map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		fmt.Printf("Queued intervention %s\n", out["intervention_id"])
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "", "daemon address (defaults to configured listen_addr)")
	rootCmd.AddCommand(triggerCmd)
}
