package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aschepis/backscratcher/bridge/agent"
	ctxpkg "github.com/aschepis/backscratcher/bridge/context"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Send a prompt and print the answer",
	Long:  "Send a prompt (arguments, or stdin when none are given) to a provider. With --tools the model may call the registered tools before answering.",
	RunE:  runChat,
}

func init() {
	addPromptFlags(chatCmd)
	chatCmd.Flags().Bool("tools", false, "Allow the model to call tools")
	chatCmd.Flags().Int("max-iterations", 0, "Tool loop iteration cap (default from config)")
	chatCmd.Flags().Bool("json", false, "Print the full result as JSON")
	chatCmd.Flags().StringSlice("attach", nil, "Attach a file (repeatable)")
	chatCmd.Flags().BoolP("verbose", "v", false, "Report tool loop progress on stderr")
	rootCmd.AddCommand(chatCmd)
}

// addPromptFlags registers the generation flags shared by chat and stream.
func addPromptFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("system", "s", "", "System prompt")
	cmd.Flags().Float64("temperature", -1, "Sampling temperature (unset when negative)")
	cmd.Flags().Int("max-tokens", 0, "Maximum tokens to generate")
}

// promptText joins args, or reads stdin when there are none.
func promptText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return text, nil
}

// buildMessages returns the conversation and call options from the prompt flags.
func buildMessages(cmd *cobra.Command, a *app, args []string) ([]llm.Message, llm.CallOptions, error) {
	prompt, err := promptText(args)
	if err != nil {
		return nil, nil, err
	}
	opts := a.callOptions()
	if t, _ := cmd.Flags().GetFloat64("temperature"); t >= 0 {
		opts[llm.OptTemperature] = t
	}
	if n, _ := cmd.Flags().GetInt("max-tokens"); n > 0 {
		opts[llm.OptMaxTokens] = n
	}

	var attachments []llm.Attachment
	if cmd.Flags().Lookup("attach") != nil {
		paths, _ := cmd.Flags().GetStringSlice("attach")
		for _, p := range paths {
			attachments = append(attachments, llm.AttachmentFromPath(p, ""))
		}
	}

	var messages []llm.Message
	if system, _ := cmd.Flags().GetString("system"); system != "" {
		messages = append(messages, llm.NewTextMessage(llm.RoleSystem, system))
	}
	messages = append(messages, llm.NewUserMessage(prompt, attachments...))
	return messages, opts, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	withTools, _ := cmd.Flags().GetBool("tools")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{tools: withTools, history: withTools})
	if err != nil {
		return err
	}
	defer a.close()

	messages, opts, err := buildMessages(cmd, a, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !withTools {
		res, err := a.manager.ChatNormalized(ctx, a.provider(), messages, opts)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, res)
		}
		fmt.Fprintln(out, res.Text)
		return nil
	}

	if n, _ := cmd.Flags().GetInt("max-iterations"); n > 0 {
		opts[llm.OptMaxToolIterations] = n
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		errOut := cmd.ErrOrStderr()
		ctx = ctxpkg.WithProgress(ctx, func(msg string) { fmt.Fprintln(errOut, "·", msg) })
	}
	result, err := a.manager.ChatWithTools(ctx, a.provider(), messages, opts)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, result)
	}
	printRun(out, result)
	if !result.Succeeded() {
		return fmt.Errorf("no final answer after %d iterations: %w", result.Iterations, result.Err)
	}
	return nil
}

func printRun(out io.Writer, result *agent.RunResult) {
	if len(result.ToolCalls) > 0 {
		table := uitable.New()
		table.MaxColWidth = 60
		table.Wrap = true
		table.AddRow("TOOL", "ARGUMENTS", "RESULT")
		for _, call := range result.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			table.AddRow(call.Name, string(args), call.Result)
		}
		fmt.Fprintln(out, table)
		fmt.Fprintln(out)
	}
	if result.Text != "" {
		fmt.Fprintln(out, result.Text)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
