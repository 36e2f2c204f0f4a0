package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/pkg/output"
)

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "List email addresses from a ServePoint roster or a Beacon record",
	Long: `Emails prints one address per line, deduplicated and sorted, ready to
paste into a mailing tool. --event reads a ServePoint event roster;
--constituent reads the addresses on file for a Beacon constituent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID, _ := cmd.Flags().GetString("event")
		constituentID, _ := cmd.Flags().GetString("constituent")
		if (eventID == "") == (constituentID == "") {
			return fmt.Errorf("exactly one of --event or --constituent is required")
		}

		rt, err := buildRuntime(false)
		if err != nil {
			return err
		}

		var emails []string
		if eventID != "" {
			emails, err = rt.reports.EventEmails(cmd.Context(), eventID)
		} else {
			emails, err = rt.reports.ConstituentEmails(cmd.Context(), constituentID)
		}
		if err != nil {
			return err
		}
		for _, e := range emails {
			fmt.Println(e)
		}
		output.Info("%d addresses", len(emails))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(emailsCmd)
	emailsCmd.Flags().String("event", "", "ServePoint event ID whose roster to list")
	emailsCmd.Flags().String("constituent", "", "Beacon constituent ID whose addresses to list")
}
