package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/prefd/internal/extraction"
)

var (
	// turn command flags
	turnLocaleHint string
	turnOutputJSON bool
)

func init() {
	rootCmd.AddCommand(turnCmd)

	turnCmd.Flags().StringVar(&turnLocaleHint, "locale", "", "Locale hint as a BCP 47 tag (e.g. pt-BR)")
	turnCmd.Flags().BoolVar(&turnOutputJSON, "json", false, "Output the turn result as JSON")
}

// turnCmd submits a conversation window for a user
var turnCmd = &cobra.Command{
	Use:   "turn <user-id> [file]",
	Short: "Submit a conversation window for preference extraction",
	Long: `Submit a conversation window to the prefd server and print the
reconciliation result.

The transcript is read from a file or stdin, one turn per line. Lines prefixed
with "user:" or "assistant:" set the role; unprefixed lines default to user.

Examples:
  # Submit a transcript file
  prefctl turn alice transcript.txt

  # Submit from stdin
  echo "I'd prefer to pay in euros" | prefctl turn alice -

  # Submit with a locale hint
  prefctl turn alice transcript.txt --locale pt-BR`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTurn,
}

// TurnRequest matches internal/http/server.go TurnRequest
type TurnRequest struct {
	UserID     string            `json:"user_id"`
	LocaleHint string            `json:"locale_hint,omitempty"`
	Turns      []extraction.Turn `json:"turns"`
}

func runTurn(cmd *cobra.Command, args []string) error {
	userID := args[0]

	var content []byte
	var err error
	if len(args) == 1 || args[1] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[1], err)
		}
	}

	turns, err := parseTranscript(content)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("no turns to submit")
	}

	reqBody := TurnRequest{
		UserID:     userID,
		LocaleHint: turnLocaleHint,
		Turns:      turns,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/turns", serverURL)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var turnResp TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turnResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if turnOutputJSON {
		return outputJSON(turnResp)
	}

	fmt.Printf("Turn: %s\n", turnResp.TurnID)
	for _, a := range turnResp.Applied {
		fmt.Printf("  %-24s %s -> %s\n", a.Outcome, a.Candidate.Category, a.Candidate.Canonical())
	}
	for _, d := range turnResp.Dropped {
		fmt.Fprintf(os.Stderr, "  dropped: %s\n", d)
	}
	for _, w := range turnResp.Warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
	}
	if turnResp.Usage.Total() > 0 {
		fmt.Printf("Tokens: %d in, %d out\n", turnResp.Usage.InputTokens, turnResp.Usage.OutputTokens)
	}

	if turnResp.Profile != nil {
		fmt.Println()
		fmt.Println(renderProfile(turnResp.Profile, 0))
	}

	return nil
}

// parseTranscript splits a transcript into turns, one per non-empty line.
// A "user:" or "assistant:" prefix sets the role; the default is user.
func parseTranscript(content []byte) ([]extraction.Turn, error) {
	var turns []extraction.Turn

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		role := "user"
		switch {
		case strings.HasPrefix(line, "user:"):
			line = strings.TrimSpace(strings.TrimPrefix(line, "user:"))
		case strings.HasPrefix(line, "assistant:"):
			role = "assistant"
			line = strings.TrimSpace(strings.TrimPrefix(line, "assistant:"))
		}
		if line == "" {
			continue
		}

		turns = append(turns, extraction.Turn{Role: role, Content: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return turns, nil
}
