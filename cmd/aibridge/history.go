package main

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded tool-augmented runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a recorded run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to list")
	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd.Context(), appOptions{history: true})
	if err != nil {
		return nil, err
	}
	if a.history == nil {
		a.close()
		return nil, fmt.Errorf("run history is disabled in the configuration")
	}
	return a, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := a.history.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("ID", "CREATED", "PROVIDER", "MODEL", "STATE", "ITER", "ANSWER")
	for _, run := range runs {
		answer := strings.ReplaceAll(run.Text, "\n", " ")
		if run.Error != "" {
			answer = "error: " + run.Error
		}
		table.AddRow(run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"), run.Provider, run.Model, run.State, run.Iterations, answer)
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.history.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), run)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.history.DeleteRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
