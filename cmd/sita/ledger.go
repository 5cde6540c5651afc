package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/intelligence"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

var ledgerSeed int

var ledgerCmd = &cobra.Command{
	Use:     "ledger",
	Short:   "Print the decision ledger of a fully completed demo",
	GroupID: "demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap := completeDemo(ledgerSeed)
		events := intelligence.DecisionLedger(snap.Workflows, ledgerSeed)
		if err := intelligence.VerifyChain(events); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, events)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tWORKFLOW\tSTEP\tVERDICT\tRULE\tCONFIDENCE\tACTOR\tROW HASH")
		for _, ev := range events {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.4f\t%s\t%s\n",
				ev.Seq, ev.Workflow, ev.Step, ev.Verdict, ev.Rule, ev.Confidence, ev.Actor, shortHash(ev.RowHash))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s %d receipts, chain verified\n", colorize(colorGreen, "ok:"), len(snap.Receipts))
		return nil
	},
}

func init() {
	ledgerCmd.Flags().IntVar(&ledgerSeed, "seed", demo.DefaultSettings().Seed, "demo seed")
}

// completeDemo drives every workflow to its receipt on a frozen clock and
// returns the final snapshot.
func completeDemo(seed int) demo.Snapshot {
	mock := clock.NewMock()
	mock.Set(demo.FrozenInstant)
	settings := demo.DefaultSettings()
	settings.Seed = seed
	s := demo.NewStore(demo.Options{Clock: mock, Settings: &settings, Logger: quietLogger()})
	defer s.Close()

	for _, id := range workflow.All() {
		for i := 0; i < 8; i++ {
			st, _ := s.Snapshot().Workflow(id)
			if st.Step == workflow.ReceiptStep {
				break
			}
			s.AdvanceWorkflow(id)
		}
	}
	return s.Snapshot()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
