package cli

import (
	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/internal/service"
	"github.com/graceworks/missionsync/pkg/output"
)

var fundsCmd = &cobra.Command{
	Use:   "funds",
	Short: "Inspect Beacon funds and maintain the trip-code fund map",
}

var fundsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List Beacon funds with their detected trip codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		rt, err := buildRuntime(false)
		if err != nil {
			return err
		}
		funds, err := rt.reports.ListFunds(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return output.JSON(funds)
		}

		t := output.NewTable("FUND ID", "CATEGORY", "TRIP CODE", "MAPPED", "DESCRIPTION")
		for _, f := range funds {
			code := service.ExtractTripCode(f.Description)
			mapped := "-"
			if code != "" {
				if _, ok := rt.fundMap.Funds[code]; ok {
					mapped = "yes"
				} else {
					mapped = "no"
				}
			}
			t.AddRow(f.ID.String(), f.Category, code, mapped, f.Description)
		}
		t.Render()
		output.Info("%d funds", len(funds))
		return nil
	},
}

var fundsMapCmd = &cobra.Command{
	Use:   "map",
	Short: "Scan fund descriptions and extend the trip-code fund map",
	Long: `Map walks the Beacon fund catalog, extracts trip codes from fund
descriptions and adds the new pairs to the fund map file. Codes already
mapped are never overwritten, so hand edits survive re-scans.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(false)
		if err != nil {
			return err
		}
		added, err := rt.reports.BuildFundMap(cmd.Context(), rt.fundMap)
		if err != nil {
			return err
		}
		if added > 0 {
			if err := rt.fundMap.Save(cfg.FundMappingFile); err != nil {
				return err
			}
		}
		stale, err := rt.reports.VerifyFundMap(cmd.Context(), rt.fundMap)
		if err != nil {
			return err
		}
		for _, code := range stale {
			output.Warn("Mapped fund for %s no longer exists in Beacon", code)
		}
		output.Success("%d new trip codes mapped, %d total in %s",
			added, len(rt.fundMap.Funds), cfg.FundMappingFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fundsCmd)
	fundsCmd.AddCommand(fundsListCmd)
	fundsCmd.AddCommand(fundsMapCmd)
	fundsListCmd.Flags().Bool("json", false, "emit the raw fund list as JSON")
}
