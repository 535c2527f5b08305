// Package main implements the prefctl CLI for manual operations against the
// prefd HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/prefd/internal/extraction"
	"github.com/fyrsmithlabs/prefd/internal/preference"
)

var (
	// serverURL is the base URL for the prefd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prefctl",
	Short: "CLI for prefd HTTP server operations",
	Long: `prefctl is a command-line interface for interacting with the prefd HTTP server.
It provides commands for submitting conversation turns, inspecting preference
profiles, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8420", "prefd server URL")
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check prefd server health",
	Long: `Check the health status of the prefd HTTP server.

Examples:
  # Check health
  prefctl health

  # Check health on a different server
  prefctl health --server http://localhost:9090`,
	RunE: runHealth,
}

// TurnResponse matches internal/http/server.go TurnResponse
type TurnResponse struct {
	TurnID   string               `json:"turn_id"`
	Profile  *preference.Profile  `json:"profile"`
	Applied  []preference.Applied `json:"applied,omitempty"`
	Dropped  []string             `json:"dropped,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Usage    extraction.Usage     `json:"usage"`
}

// ProfileResponse matches internal/http/server.go ProfileResponse
type ProfileResponse struct {
	Profile  *preference.Profile `json:"profile"`
	Revision uint64              `json:"revision"`
}

// HealthResponse matches internal/http/server.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}

// statusError builds an error from a non-OK HTTP response.
func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
