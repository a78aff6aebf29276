package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session URL MINUTES",
	Short: "Run a timed session in the foreground",
	Long: `Start a session for URL against today's budget, wait until the requested
minutes have elapsed or Ctrl-C is pressed, then settle the elapsed time.

The session is held by this process. Do not run it against a store that a
running server is also writing unless storage.versioned is enabled.`,
	Example: `  sitebudget session https://www.youtube.com 30`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid minutes: %s", args[1])
	}

	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	grant, refusal := tracker.StartSession(args[0], minutes)
	if refusal != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, refusal.Message)
		return fmt.Errorf("session refused: %s", refusal.Reason)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println(grant.Message)
	fmt.Printf("Open %s\n", grant.DestinationURL)
	fmt.Printf("Session ends at %s. Press Ctrl-C to end early.\n", grant.ExpiresAt.In(tracker.Location()).Format(time.Kitchen))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	timer := time.NewTimer(time.Until(grant.ExpiresAt))
	defer timer.Stop()

	select {
	case <-timer.C:
		fmt.Println()
		color.New(color.FgYellow, color.Bold).Printf("Time's up for %s\n", grant.SiteKey)
	case <-sigChan:
		fmt.Println()
		fmt.Println("Ending session early")
	}

	tracker.EndSession()

	u, _ := tracker.Usage(grant.SiteKey)
	fmt.Printf("%s: %d minutes used, %d remaining today\n", grant.SiteKey, u.UsedMinutes, u.RemainingMinutes)
	return nil
}
