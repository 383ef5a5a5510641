package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List created tickets",
		Run:   runCases,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runCases(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openRecords(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cases, err := s.ListCases(cmd.Context(), limit)
	if err != nil {
		exitErr("list cases", err)
	}

	if formatFlag == "json" {
		printJSON(cmd.OutOrStdout(), cases)
		return
	}
	printCases(cmd.OutOrStdout(), cases)
}

func printCases(out io.Writer, cases []model.CaseRecord) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKET\tTYPE\tTRAIN\tCAR\tCREATED")
	for _, c := range cases {
		car := "-"
		if c.Payload.Shared.CarNumber > 0 {
			car = strconv.Itoa(c.Payload.Shared.CarNumber)
		}
		train := c.Payload.Shared.Train
		if train == "" {
			train = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.TicketID, c.Type, train, car, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
