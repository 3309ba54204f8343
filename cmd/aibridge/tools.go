package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to tool-augmented chats",
	RunE:  runTools,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name> [json-arguments]",
	Short: "Execute a tool directly",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runToolsCall,
}

func init() {
	toolsCmd.Flags().Bool("schema", false, "Print the JSON schema of every tool")
	toolsCmd.AddCommand(toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{tools: true})
	if err != nil {
		return err
	}
	defer a.close()

	specs := a.manager.Tools().Specs()
	if withSchema, _ := cmd.Flags().GetBool("schema"); withSchema {
		return printJSON(cmd.OutOrStdout(), specs)
	}

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("NAME", "DESCRIPTION")
	for _, spec := range specs {
		table.AddRow(spec.Name, spec.Description)
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{tools: true})
	if err != nil {
		return err
	}
	defer a.close()

	callArgs := map[string]any{}
	if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	result, err := a.manager.Tools().Execute(ctx, args[0], callArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
