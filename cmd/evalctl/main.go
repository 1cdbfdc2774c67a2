package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "evalctl",
		Short:         "Manage evaluation runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9020", "base URL of the evaluation server")

	root.AddCommand(createCmd(), statusCmd(), metricsCmd(), watchCmd(), indexCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an evaluation run from a JSON spec file and start it",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read run spec: %w", err)
			}
			var body json.RawMessage
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("run spec is not valid JSON: %w", err)
			}

			var resp struct {
				RunID  string `json:"run_id"`
				Status string `json:"status"`
			}
			if err := call(http.MethodPost, "/v1/evaluations", body, &resp); err != nil {
				return err
			}
			fmt.Printf("run %s created (%s)\n", resp.RunID, resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the run spec JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := fetchRun(args[0])
			if err != nil {
				return err
			}
			printRun(run)
			return nil
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <run-id>",
		Short: "Print the computed metrics of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := call(http.MethodGet, "/v1/evaluations/"+args[0]+"/metrics", nil, &out); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				return err
			}
			fmt.Println(pretty.String())
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Poll a run until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for {
				run, err := fetchRun(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  %3d%%  %d/%d questions\n",
					run.Status, run.Progress, run.CompletedQuestions, run.TotalQuestions)
				if run.Status == "completed" || run.Status == "failed" {
					printRun(run)
					if run.Status == "failed" {
						return fmt.Errorf("run failed: %s", run.ErrorMessage)
					}
					return nil
				}
				time.Sleep(interval)
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "polling interval")
	return cmd
}

func indexCmd() *cobra.Command {
	var workspace, documentID string
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Chunk a text file and index it into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			body := map[string]any{
				"workspace_id": workspace,
				"document_id":  documentID,
				"text":         string(raw),
			}
			var resp struct {
				DocumentID string `json:"document_id"`
				Collection string `json:"collection"`
				ChunkCount int    `json:"chunk_count"`
			}
			if err := call(http.MethodPost, "/v1/documents", body, &resp); err != nil {
				return err
			}
			fmt.Printf("indexed %s into %s (%d chunks)\n", resp.DocumentID, resp.Collection, resp.ChunkCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "default", "workspace to index into")
	cmd.Flags().StringVar(&documentID, "document-id", "", "stable document ID for idempotent re-indexing")
	return cmd
}

type runView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Status             string `json:"status"`
	Progress           int    `json:"progress"`
	CompletedQuestions int    `json:"completed_questions"`
	TotalQuestions     int    `json:"total_questions"`
	ErrorMessage       string `json:"error_message"`
	Summary            *struct {
		OverallScores map[string]float64 `json:"overall_scores"`
		BestModelKey  string             `json:"best_model_key"`
		TotalCostUSD  float64            `json:"total_cost_usd"`
		DurationMS    int64              `json:"duration_ms"`
	} `json:"summary"`
}

func fetchRun(id string) (*runView, error) {
	var run runView
	if err := call(http.MethodGet, "/v1/evaluations/"+id, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func printRun(run *runView) {
	fmt.Printf("run:      %s (%s)\n", run.ID, run.Name)
	fmt.Printf("status:   %s (%d%%, %d/%d questions)\n",
		run.Status, run.Progress, run.CompletedQuestions, run.TotalQuestions)
	if run.ErrorMessage != "" {
		fmt.Printf("error:    %s\n", run.ErrorMessage)
	}
	if run.Summary != nil {
		fmt.Printf("cost:     $%.4f\n", run.Summary.TotalCostUSD)
		fmt.Printf("duration: %s\n", time.Duration(run.Summary.DurationMS)*time.Millisecond)
		if run.Summary.BestModelKey != "" {
			fmt.Printf("best:     %s\n", run.Summary.BestModelKey)
		}
		for key, score := range run.Summary.OverallScores {
			fmt.Printf("  %-30s %.3f\n", key, score)
		}
	}
}

func call(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
