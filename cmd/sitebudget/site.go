package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/spf13/cobra"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage tracked websites",
	Long:  `Add, remove and inspect the websites that have a daily time budget.`,
}

var siteAddCmd = &cobra.Command{
	Use:   "add URL MINUTES",
	Short: "Track a website with a daily limit",
	Example: `  sitebudget site add https://www.youtube.com 60
  sitebudget -c config.yaml site add reddit.com 30`,
	Args: cobra.ExactArgs(2),
	RunE: runSiteAdd,
}

var siteRemoveCmd = &cobra.Command{
	Use:     "remove SITE",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a website that has no usage today",
	Args:    cobra.ExactArgs(1),
	RunE:    runSiteRemove,
}

var siteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tracked websites and today's usage",
	Args:    cobra.NoArgs,
	RunE:    runSiteList,
}

var siteRemainingCmd = &cobra.Command{
	Use:   "remaining SITE",
	Short: "Show the minutes left today for a website",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteRemaining,
}

func init() {
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteRemoveCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteRemainingCmd)
	rootCmd.AddCommand(siteCmd)
}

func runSiteAdd(cmd *cobra.Command, args []string) error {
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

	key, err := tracker.AddSite(args[0], minutes)
	switch {
	case errors.Is(err, usage.ErrInvalidSite):
		return fmt.Errorf("a website URL is required")
	case errors.Is(err, usage.ErrInvalidLimit):
		return fmt.Errorf("the daily limit must be a positive number of minutes")
	case err != nil:
		return err
	}

	site, _ := tracker.Site(key)
	if site.DailyLimitMinutes != minutes {
		color.New(color.FgYellow).Printf("%s is already tracked with a limit of %d minutes\n", key, site.DailyLimitMinutes)
		return nil
	}
	color.New(color.FgGreen).Printf("Tracking %s with a daily limit of %d minutes\n", key, minutes)
	return nil
}

func runSiteRemove(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	key := tracker.Normalize(args[0])
	if _, ok := tracker.Site(key); !ok {
		return fmt.Errorf("website not found: %s", key)
	}
	if !tracker.RemoveSite(key) {
		return fmt.Errorf("%s has usage today or a running session and cannot be removed", key)
	}

	color.New(color.FgGreen).Printf("Removed %s\n", key)
	return nil
}

func runSiteList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sites := tracker.ListSites()
	if len(sites) == 0 {
		fmt.Println("No websites are tracked.")
		return nil
	}

	red := color.New(color.FgRed, color.Bold)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tLIMIT\tUSED\tREMAINING\tLAST RESET")
	for _, s := range sites {
		remaining := tracker.Remaining(s.SiteKey)
		remainingStr := strconv.Itoa(remaining)
		if remaining == 0 {
			remainingStr = red.Sprint("0")
		}
		used := 0
		if u, ok := tracker.Usage(s.SiteKey); ok {
			used = u.UsedMinutes
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.SiteKey, s.DailyLimitMinutes, used, remainingStr, s.LastResetDate)
	}
	return w.Flush()
}

func runSiteRemaining(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	key := tracker.Normalize(args[0])
	u, ok := tracker.Usage(key)
	if !ok {
		return fmt.Errorf("website not found: %s", key)
	}

	fmt.Printf("%s: %d of %d minutes remaining today\n", key, u.RemainingMinutes, u.DailyLimitMinutes)
	return nil
}
