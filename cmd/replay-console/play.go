// play.go — One-shot playback against the running daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newPlayCommand() *cobra.Command {
	var (
		tab         string
		csvPath     string
		stopOnError bool
	)

	cmd := &cobra.Command{
		Use:   "play <recording-id>",
		Short: "Replay a recording through the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			csvText := ""
			if csvPath != "" {
				data, err := os.ReadFile(csvPath)
				if err != nil {
					return fmt.Errorf("read csv: %w", err)
				}
				csvText = string(data)
			}

			params := map[string]any{
				"tab":           tab,
				"recording_id":  args[0],
				"csv":           csvText,
				"stop_on_error": stopOnError,
			}
			result, err := rpcCall(cfg.APIBind, "playback.start", params)
			if err != nil {
				return err
			}
			var started struct {
				RunID string `json:"run_id"`
			}
			if err := json.Unmarshal(result, &started); err != nil {
				return fmt.Errorf("decode playback.start result: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run started: %s\n", started.RunID)

			// Poll until the run completes.
			for {
				time.Sleep(time.Second)
				result, err := rpcCall(cfg.APIBind, "playback.status", map[string]any{"run_id": started.RunID})
				if err != nil {
					return err
				}
				var status struct {
					Done   bool `json:"done"`
					Result *struct {
						PassCount int  `json:"pass_count"`
						FailCount int  `json:"fail_count"`
						Stopped   bool `json:"stopped"`
					} `json:"result"`
					Error string `json:"error"`
				}
				if err := json.Unmarshal(result, &status); err != nil {
					return fmt.Errorf("decode status: %w", err)
				}
				if !status.Done {
					continue
				}
				if status.Error != "" {
					return fmt.Errorf("run failed: %s", status.Error)
				}
				if status.Result != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "run finished: %d passed, %d failed\n",
						status.Result.PassCount, status.Result.FailCount)
					if status.Result.FailCount > 0 {
						os.Exit(1)
					}
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&tab, "tab", "", "tab handle to replay against (required)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file for data-driven replay")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort the run on the first failed step")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

// rpcCall posts one JSON-RPC request to the daemon.
func rpcCall(bind, method string, params any) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  json.RawMessage(encoded),
	})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post("http://"+bind+"/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is `replay-console serve` running?): %w", bind, err)
	}
	defer resp.Body.Close()

	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%s: %s", method, response.Error.Message)
	}
	return response.Result, nil
}
