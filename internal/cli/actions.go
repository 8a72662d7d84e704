package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dailygrind/dailygrind/internal/app/orchestrator"
	"github.com/dailygrind/dailygrind/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recheckCmd)
	rootCmd.AddCommand(rerollCmd)
	rootCmd.AddCommand(emergencyCmd)
	emergencyCmd.AddCommand(emergencyOnCmd)
	emergencyCmd.AddCommand(emergencyOffCmd)
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("factory", false, "wipe all state and settings, not just today")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(logsCmd)
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's challenge status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var snap orchestrator.Snapshot
	if err := c.get("/api/v1/snapshot", &snap); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Date:    %s (%s)\n", snap.Today, snap.Status)
	if snap.Daily.TodayProblemID > 0 {
		title := snap.ProblemTitle
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(os.Stdout, "Problem: #%d %s [%s]\n", snap.Daily.TodayProblemID, title, snap.ProblemTier)
		fmt.Fprintf(os.Stdout, "URL:     %s\n", snap.ProblemURL)
	} else {
		fmt.Fprintf(os.Stdout, "Problem: none assigned (%s)\n", snap.Daily.LastAPIError)
	}
	fmt.Fprintf(os.Stdout, "Rerolls: %d remaining\n", snap.RerollRemaining)
	fmt.Fprintf(os.Stdout, "Streak:  %d days, %d%% of last 30\n", snap.Stats.Streak, snap.Stats.Recent30Rate)
	if snap.EmergencyActive {
		fmt.Fprintf(os.Stdout, "Emergency window: %s remaining\n",
			(time.Duration(snap.EmergencyLeftMS) * time.Millisecond).Round(time.Second))
	}
	return nil
}

// ─── recheck ────────────────────────────────────────────────────────────────

var recheckCmd = &cobra.Command{
	Use:   "recheck",
	Short: "Ask the judge whether today's problem is solved",
	RunE:  runRecheck,
}

func runRecheck(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var result orchestrator.CheckResult
	if err := c.post("/api/v1/check", nil, &result); err != nil {
		return err
	}
	switch {
	case result.OK && result.Solved:
		fmt.Fprintln(os.Stdout, "Solved! Day complete.")
	case result.OK:
		fmt.Fprintln(os.Stdout, "Not solved yet.")
	default:
		fmt.Fprintf(os.Stdout, "Check did not run: %s\n", result.Reason)
	}
	return nil
}

// ─── reroll ─────────────────────────────────────────────────────────────────

var rerollCmd = &cobra.Command{
	Use:   "reroll",
	Short: "Swap today's problem for another (rate limited per day)",
	RunE:  runReroll,
}

func runReroll(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var daily domain.DailyState
	if err := c.post("/api/v1/reroll", nil, &daily); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Rerolled to problem #%d (%d rerolls used)\n", daily.TodayProblemID, daily.RerollUsed)
	return nil
}

// ─── emergency ──────────────────────────────────────────────────────────────

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Control the once-per-day emergency override window",
}

var emergencyOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Open the emergency window (consumes today's allowance)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleEmergency(cmd, "activate")
	},
}

var emergencyOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Close an active emergency window early",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleEmergency(cmd, "deactivate")
	},
}

func toggleEmergency(cmd *cobra.Command, action string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var daily domain.DailyState
	if err := c.post("/api/v1/emergency", map[string]string{"action": action}, &daily); err != nil {
		return err
	}
	if action == "activate" {
		fmt.Fprintln(os.Stdout, "Emergency window opened. Redirects are suspended.")
	} else {
		fmt.Fprintln(os.Stdout, "Emergency window closed.")
	}
	return nil
}

// ─── reset ──────────────────────────────────────────────────────────────────

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset today's assignment (or --factory for everything)",
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	factory, _ := cmd.Flags().GetBool("factory")
	path := "/api/v1/reset"
	if factory {
		path = "/api/v1/factory-reset"
	}
	var daily domain.DailyState
	if err := c.post(path, nil, &daily); err != nil {
		return err
	}
	if factory {
		fmt.Fprintln(os.Stdout, "Factory reset complete.")
	} else {
		fmt.Fprintf(os.Stdout, "Today reset; problem #%d assigned.\n", daily.TodayProblemID)
	}
	return nil
}

// ─── validate ───────────────────────────────────────────────────────────────

var validateCmd = &cobra.Command{
	Use:   "validate HANDLE",
	Short: "Validate a judge handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var profile domain.UserProfile
	if err := c.post("/api/v1/validate-handle", map[string]string{"handle": args[0]}, &profile); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %s, %d solved, rating %d\n",
		profile.Handle, domain.TierLabel(profile.Tier), profile.SolvedCount, profile.Rating)
	return nil
}

// ─── logs ───────────────────────────────────────────────────────────────────

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the daemon's recent state log",
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	c, err := clientFor(cmd)
	if err != nil {
		return err
	}
	var resp struct {
		Logs []domain.LogEntry `json:"logs"`
	}
	if err := c.get("/api/v1/logs", &resp); err != nil {
		return err
	}
	if len(resp.Logs) == 0 {
		fmt.Fprintln(os.Stdout, "No recent log entries.")
		return nil
	}
	for _, entry := range resp.Logs {
		ts := time.UnixMilli(entry.TS).In(domain.KST).Format("01-02 15:04:05")
		fmt.Fprintf(os.Stdout, "%s [%s] %s\n", ts, entry.Level, entry.Msg)
	}
	return nil
}
