package main

import (
	"fmt"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var modelsCmd = &cobra.Command{
	Use:   "models [id]",
	Short: "List a provider's models, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().Bool("json", false, "Print the provider's raw response")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		raw, err := a.manager.GetModel(ctx, a.provider(), args[0])
		if err != nil {
			return err
		}
		return printJSON(out, raw)
	}

	raw, err := a.manager.ListModels(ctx, a.provider())
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, raw)
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("MODEL", "OWNER / DETAILS")
	for _, m := range modelRows(raw) {
		table.AddRow(m[0], m[1])
	}
	fmt.Fprintln(out, table)
	return nil
}

// modelRows extracts (id, detail) pairs from the list shapes of the bundled
// providers: OpenAI/Anthropic "data", Ollama "models[].name", Gemini
// "models[].name" with displayName.
func modelRows(raw llm.RawResponse) [][2]string {
	var rows [][2]string
	raw.Get("data").ForEach(func(_, m gjson.Result) bool {
		detail := m.Get("owned_by").String()
		if detail == "" {
			detail = m.Get("display_name").String()
		}
		rows = append(rows, [2]string{m.Get("id").String(), detail})
		return true
	})
	raw.Get("models").ForEach(func(_, m gjson.Result) bool {
		detail := m.Get("displayName").String()
		if detail == "" {
			detail = m.Get("details.parameter_size").String()
		}
		rows = append(rows, [2]string{m.Get("name").String(), detail})
		return true
	})
	return rows
}
