package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream [prompt...]",
	Short: "Stream the answer to a prompt as it is generated",
	RunE:  runStream,
}

func init() {
	addPromptFlags(streamCmd)
	streamCmd.Flags().Bool("events", false, "Print structured events (one JSON object per line)")
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	messages, opts, err := buildMessages(cmd, a, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if events, _ := cmd.Flags().GetBool("events"); events {
		stream, err := a.manager.StreamEvents(ctx, a.provider(), messages, opts)
		if err != nil {
			return err
		}
		defer stream.Close() //nolint:errcheck // Close error is irrelevant once drained
		for stream.Next() {
			if err := printCompactJSON(out, stream.Event()); err != nil {
				return err
			}
		}
		return stream.Err()
	}

	stream, err := a.manager.Stream(ctx, a.provider(), messages, opts)
	if err != nil {
		return err
	}
	defer stream.Close() //nolint:errcheck // Close error is irrelevant once drained
	for stream.Next() {
		fmt.Fprint(out, stream.Delta())
	}
	fmt.Fprintln(out)
	return stream.Err()
}

func printCompactJSON(out io.Writer, ev llm.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
