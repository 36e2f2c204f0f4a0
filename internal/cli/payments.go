package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/internal/service"
	"github.com/graceworks/missionsync/pkg/output"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Post ServePoint trip payments to the Beacon gift ledger",
	Long: `Payments turns ServePoint trip payments into Beacon gifts, routed to
funds by trip code through the fund map.

Every gift carries the payment's reference as its lookup ID, so a window
can be reprocessed freely; payments already on the ledger are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		startDate, _ := cmd.Flags().GetString("start-date")
		endDate, _ := cmd.Flags().GetString("end-date")
		paymentID, _ := cmd.Flags().GetString("payment-id")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		for _, d := range []string{startDate, endDate} {
			if d == "" {
				continue
			}
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
			}
		}

		rt, err := buildRuntime(dryRun)
		if err != nil {
			return err
		}
		if rt.fundMap.DefaultFundID == "" && len(rt.fundMap.Funds) == 0 {
			output.Warn("Fund map is empty and no default fund is set; run 'missionsync funds map' first")
		}

		sum, err := rt.orch.RunFinancial(cmd.Context(), service.FinancialOptions{
			StartDate: startDate,
			EndDate:   endDate,
			PaymentID: paymentID,
			BatchSize: batchSize,
			DryRun:    dryRun,
		})
		if sum != nil {
			printPaymentReport(sum, dryRun)
		}
		if err != nil {
			return err
		}
		if sum.HasErrors() {
			return fmt.Errorf("%d payments failed, see %s for details", len(sum.Errors), cfg.LogFile)
		}
		output.Success("Payments processed in %s", sum.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(paymentsCmd)
	paymentsCmd.Flags().String("start-date", "", "earliest payment date, YYYY-MM-DD inclusive")
	paymentsCmd.Flags().String("end-date", "", "latest payment date, YYYY-MM-DD inclusive")
	paymentsCmd.Flags().String("payment-id", "", "process a single payment by ID")
	paymentsCmd.Flags().Int("batch-size", 25, "progress checkpoint interval")
	paymentsCmd.Flags().Bool("dry-run", false, "log intended gifts without changing Beacon")
}

func printPaymentReport(sum *service.RunSummary, dryRun bool) {
	if dryRun {
		output.Warn("Dry run, nothing was written")
	}
	t := output.NewTable("RECORD", "CREATED", "MATCHED", "SKIPPED")
	t.AddRow("gifts",
		strconv.Itoa(sum.GiftsCreated), "-", strconv.Itoa(sum.GiftsSkipped))
	t.AddRow("constituents",
		strconv.Itoa(sum.ConstituentsCreated), strconv.Itoa(sum.ConstituentsMatched), "-")
	t.Render()
	printRunErrors(sum)
}
