package cli

import (
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Generate the knowledge base PDF",
	Long: `Scrapes the configured sources into the knowledge base PDF and rebuilds
the index from it. Sources that cannot be fetched are recorded as error lines.`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.session.Close()

	path, err := rt.session.GenerateKnowledgeBase(cmd.Context())
	if path != "" {
		cmd.Printf("Knowledge base written to %s\n", path)
	}
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %d segments into %s\n", rt.session.Segments(), rt.cfg.Index.Path)
	return nil
}
