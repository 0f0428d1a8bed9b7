package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/costlens/costlens/internal/ai"
	"github.com/costlens/costlens/internal/controller"
	"github.com/costlens/costlens/internal/cost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var chatProvider string

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "Data provider to start with: mock, aws, backend")
}

// chatCmd runs the interactive dashboard session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive cost dashboard with an AI copilot",
	Long: `Start an interactive session: pick a provider, explore the spend series
and anomalies, and ask the AI copilot questions about the ledger.

Commands inside the session:
  /provider <name>        select the data provider (mock, aws, backend)
  /dates <start> <end>    change the analysis window (YYYY-MM-DD)
  /granularity <g>        change chart bucketing (day, month, year)
  /anomalies              list detected anomalies
  /select <n>             explain anomaly n (0 clears the selection)
  /reset                  back to provider selection
  /quit                   leave the session

Anything else is sent to the copilot as a chat message.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		debug := viper.GetBool("debug")

		pipeline := buildPipeline(ctx, debug, false)
		assistant := ai.NewClientFromConfig(ctx, debug)
		ctrl := controller.New(pipeline, assistant, debug)

		fmt.Println("costlens interactive session. Type /quit to exit.")
		if chatProvider != "" {
			runIntent(func() error { return ctrl.SelectProvider(ctx, chatProvider) })
			printOverview(ctrl)
		} else {
			fmt.Printf("Select a provider to begin: /provider <%s>\n", strings.Join(pipeline.Sources(), "|"))
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			if !strings.HasPrefix(line, "/") {
				before := len(ctrl.Snapshot().ChatHistory)
				runIntent(func() error { return ctrl.SendMessage(ctx, line) })
				printNewMessages(ctrl, before)
				continue
			}

			fields := strings.Fields(line)
			switch fields[0] {
			case "/quit", "/exit":
				return
			case "/provider":
				if len(fields) != 2 {
					fmt.Println("usage: /provider <name>")
					continue
				}
				runIntent(func() error { return ctrl.SelectProvider(ctx, fields[1]) })
				printOverview(ctrl)
			case "/dates":
				if len(fields) != 3 {
					fmt.Println("usage: /dates <start> <end>")
					continue
				}
				runIntent(func() error { return ctrl.SetDateRange(ctx, fields[1], fields[2]) })
				printOverview(ctrl)
			case "/granularity":
				if len(fields) != 2 {
					fmt.Println("usage: /granularity <day|month|year>")
					continue
				}
				g, err := cost.ParseGranularity(fields[1])
				if err != nil {
					fmt.Println(err)
					continue
				}
				runIntent(func() error { return ctrl.SetGranularity(ctx, g) })
				printOverview(ctrl)
			case "/anomalies":
				printAnomalies(ctrl)
			case "/select":
				if len(fields) != 2 {
					fmt.Println("usage: /select <n>")
					continue
				}
				n, err := strconv.Atoi(fields[1])
				if err != nil {
					fmt.Println("usage: /select <n>")
					continue
				}
				selectAnomaly(ctx, ctrl, n)
			case "/reset":
				ctrl.Reset()
				fmt.Println("Session reset. Select a provider to begin.")
			default:
				fmt.Printf("unknown command %s\n", fields[0])
			}
		}
	},
}

func runIntent(op func() error) {
	if err := op(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func printOverview(ctrl *controller.Controller) {
	snap := ctrl.Snapshot()
	if snap.Provider == "" {
		return
	}

	fmt.Printf("\nProvider %s, %s to %s, %s buckets: %d points, %d anomalies\n",
		snap.Provider, snap.Dates.Start, snap.Dates.End, snap.Granularity,
		len(snap.CostData), len(snap.Anomalies))

	if snap.SelectedAnomaly != nil {
		fmt.Printf("\nSelected anomaly: %s\n", snap.SelectedAnomaly.Description)
		printDetails(snap)
	}
}

func printAnomalies(ctrl *controller.Controller) {
	snap := ctrl.Snapshot()
	if len(snap.Anomalies) == 0 {
		fmt.Println("No anomalies detected.")
		return
	}
	for i, a := range snap.Anomalies {
		fmt.Printf("%d. %s  observed $%.2f, expected $%.2f\n", i+1, a.Date, a.Cost, a.ExpectedCost)
	}
}

func selectAnomaly(ctx context.Context, ctrl *controller.Controller, n int) {
	if n == 0 {
		runIntent(func() error { return ctrl.SelectAnomaly(ctx, nil) })
		fmt.Println("Selection cleared.")
		return
	}

	snap := ctrl.Snapshot()
	if n < 1 || n > len(snap.Anomalies) {
		fmt.Printf("anomaly index out of range (1-%d)\n", len(snap.Anomalies))
		return
	}
	anomaly := snap.Anomalies[n-1]
	runIntent(func() error { return ctrl.SelectAnomaly(ctx, &anomaly) })
	printDetails(ctrl.Snapshot())
}

func printDetails(snap controller.State) {
	if snap.AnomalyDetails != "" {
		fmt.Printf("\n%s\n", snap.AnomalyDetails)
	}
	for _, r := range snap.Recommendations {
		fmt.Printf("- %s: %s\n", r.Title, r.Description)
	}
}

func printNewMessages(ctrl *controller.Controller, since int) {
	snap := ctrl.Snapshot()
	if since > len(snap.ChatHistory) {
		since = len(snap.ChatHistory)
	}
	for _, msg := range snap.ChatHistory[since:] {
		if msg.Sender == controller.SenderAssistant {
			fmt.Printf("\n%s\n", msg.Text)
		}
	}
}
