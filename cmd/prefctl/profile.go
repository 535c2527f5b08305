package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

var (
	// profile command flags
	profileOutputJSON bool
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileDeleteCmd)

	profileCmd.PersistentFlags().BoolVar(&profileOutputJSON, "json", false, "Output the profile as JSON")
}

var profileCmd = &cobra.Command{
	Use:   "profile <user-id>",
	Short: "Inspect and manage preference profiles",
	Long: `Inspect and manage stored preference profiles.

Examples:
  # Show a user's profile
  prefctl profile alice

  # Show a profile as JSON
  prefctl profile alice --json

  # Delete a user's profile
  prefctl profile delete alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runProfileShow(cmd, args)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's preference profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user's preference profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

// Panel styles for human-readable profile output.
var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func runProfileShow(cmd *cobra.Command, args []string) error {
	userID := args[0]

	url := fmt.Sprintf("%s/api/v1/profiles/%s", serverURL, userID)
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("no profile stored for user %q", userID)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var profileResp ProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profileResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if profileOutputJSON {
		return outputJSON(profileResp)
	}

	fmt.Println(renderProfile(profileResp.Profile, profileResp.Revision))
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	userID := args[0]

	url := fmt.Sprintf("%s/api/v1/profiles/%s", serverURL, userID)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("no profile stored for user %q", userID)
	}
	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}

	fmt.Printf("Profile deleted: %s\n", userID)
	return nil
}

// renderProfile renders a profile as a bordered panel, one line per active
// record plus its history depth.
func renderProfile(profile *preference.Profile, revision uint64) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Profile: %s", profile.UserID)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("version %d, revision %d", profile.Version, revision)))
	b.WriteString("\n")

	if len(profile.Records) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("no preferences recorded"))
		return panelStyle.Render(b.String())
	}

	// Stable category order for repeatable output.
	categories := make([]preference.Category, 0, len(profile.Records))
	for cat := range profile.Records {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, cat := range categories {
		rec := profile.Records[cat]

		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", cat)))
		b.WriteString(" ")
		b.WriteString(valueStyle.Render(rec.Value))
		b.WriteString(dimStyle.Render(fmt.Sprintf("  (confidence %.2f)", rec.Confidence)))

		if len(rec.History) > 0 {
			prior := make([]string, 0, len(rec.History))
			for _, h := range rec.History {
				prior = append(prior, h.Value)
			}
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("%-21s previously: %s", "", strings.Join(prior, ", "))))
		}
	}

	return panelStyle.Render(b.String())
}
