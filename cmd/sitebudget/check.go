package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/sitebudget/internal/gateway"
	"github.com/goodtune/sitebudget/internal/policy"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check URL",
	Short: "Check the gateway decision for a URL",
	Long:  `Check whether the enforcement gateway would allow or block a URL right now, using the stored budgets and the configured policy.`,
	Example: `  sitebudget -c config.yaml check https://www.youtube.com/watch
  sitebudget check reddit.com`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}

	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	policyEngine, err := policy.NewEngine(cfg.Policy.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	decision := gateway.NewDecider(tracker, policyEngine, nil, logger).Decide(context.Background(), args[0])

	printDecision(args[0], decision)
	return nil
}

// printDecision prints the gateway decision with colors
func printDecision(target string, decision gateway.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("GATEWAY DECISION")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("URL:        %s\n", target)
	fmt.Printf("Host:       %s\n", decision.Host)
	if decision.Tracked {
		fmt.Printf("Site:       %s\n", decision.Site)
		yellow.Printf("Remaining:  %d minutes today\n", decision.Remaining)
	} else {
		fmt.Printf("Site:       (not tracked)\n")
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	switch decision.Action {
	case policy.ActionAllow:
		green.Println("ALLOW")
	case policy.ActionBlock:
		red.Println("BLOCK")
		fmt.Println("            → DNS answers 0.0.0.0 and the block page is shown")
	default:
		fmt.Printf("%s\n", decision.Action)
	}

	if decision.Reason != "" {
		fmt.Printf("Reason:     %s\n", decision.Reason)
	}
	fmt.Printf("Source:     %s\n", decision.Source)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
