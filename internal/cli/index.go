package cli

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or load the index",
	Long: `Loads the persisted index, or builds it from the knowledge base PDF when
no valid index exists, and prints its size and a short summary.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.session.Close()

	if err := rt.session.Activate(cmd.Context()); err != nil {
		return err
	}
	cmd.Printf("Index %s: %d segments\n", rt.cfg.Index.Path, rt.session.Segments())
	if summary := rt.session.Summary(); summary != "" {
		cmd.Println()
		cmd.Println(summary)
	}
	return nil
}
