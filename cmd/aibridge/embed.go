package main

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Compute embedding vectors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEmbed,
}

func init() {
	embedCmd.Flags().Bool("json", false, "Print the vectors as JSON")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.manager.Embeddings(ctx, a.provider(), args, a.callOptions())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, res)
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("INPUT", "DIMENSIONS", "HEAD")
	for i, vec := range res.Vectors {
		input := ""
		if i < len(args) {
			input = args[i]
		}
		head := vec
		if len(head) > 4 {
			head = head[:4]
		}
		table.AddRow(input, len(vec), fmt.Sprintf("%.4f", head))
	}
	fmt.Fprintln(out, table)
	if res.Usage != nil {
		fmt.Fprintf(out, "\ntokens: %d\n", res.Usage.TotalTokens)
	}
	return nil
}
