package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 300 * time.Second
	maxCommandOutput      = 1024 * 1024
)

// Dangerous command patterns that should be blocked
var dangerousPatterns = []string{
	"rm ", "rm -", "rmdir", "unlink",
	"format", "mkfs", "dd ",
	"sudo rm", "sudo format", "sudo mkfs",
	"chmod 777", "chmod 000",
	"curl | sh", "curl | bash", "wget | sh", "wget | bash",
	"> /dev/sd", "of=/dev/sd", "of=/dev/hd",
	"fdisk ",
	"dd if=", "dd of=",
}

// isDangerousCommand checks if a command contains dangerous patterns
func isDangerousCommand(command string) bool {
	cmdLower := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(cmdLower, pattern) {
			return true
		}
	}

	// curl/wget piped into a shell, even with arguments in between.
	if (strings.Contains(cmdLower, "curl") || strings.Contains(cmdLower, "wget")) &&
		(strings.Contains(cmdLower, "| sh") || strings.Contains(cmdLower, "| bash")) {
		return true
	}

	// Redirects to absolute paths outside the temp dirs.
	if idx := strings.Index(cmdLower, ">"); idx >= 0 {
		target := strings.TrimSpace(strings.TrimLeft(cmdLower[idx:], ">"))
		if filepath.IsAbs(target) && !strings.HasPrefix(target, "/tmp/") && !strings.HasPrefix(target, "/var/tmp/") {
			return true
		}
	}

	return false
}

// cappedBuffer keeps at most limit bytes and remembers whether more arrived.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

type systemInfoArgs struct{}

type systemInfo struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	Hostname  string `json:"hostname,omitempty"`
}

// SystemInfoTool reports the runtime the bridge is running on.
func SystemInfoTool() Tool {
	return NewTypedTool("system_info", "Return basic information about the host system (Go version, OS, architecture, CPU count, hostname).",
		func(_ context.Context, _ systemInfoArgs) (any, error) {
			host, _ := os.Hostname()
			return systemInfo{
				GoVersion: runtime.Version(),
				OS:        runtime.GOOS,
				Arch:      runtime.GOARCH,
				NumCPU:    runtime.NumCPU(),
				Hostname:  host,
			}, nil
		})
}

type executeCommandArgs struct {
	Command    string   `json:"command" jsonschema_description:"Command to execute (e.g. ls, grep, git)"`
	Args       []string `json:"args,omitempty" jsonschema_description:"Command arguments"`
	Timeout    int      `json:"timeout,omitempty" jsonschema_description:"Timeout in seconds (default 30, max 300)"`
	WorkingDir string   `json:"working_dir,omitempty" jsonschema_description:"Working directory relative to the workspace"`
	Stdin      string   `json:"stdin,omitempty" jsonschema_description:"Standard input to pipe to the command"`
}

type commandResult struct {
	Command   string `json:"command"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Success   bool   `json:"success"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ExecuteCommandTool runs a command inside workspacePath. Commands matching
// the dangerous patterns are refused.
func ExecuteCommandTool(workspacePath string) Tool {
	return NewTypedTool("execute_command",
		"Execute a command in the workspace directory. Commands that delete files, format disks or pipe remote scripts into a shell are blocked.",
		func(ctx context.Context, args executeCommandArgs) (any, error) {
			return runCommand(ctx, workspacePath, args)
		})
}

func runCommand(ctx context.Context, workspacePath string, args executeCommandArgs) (*commandResult, error) {
	if strings.TrimSpace(args.Command) == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	fullCommand := args.Command
	if len(args.Args) > 0 {
		fullCommand += " " + strings.Join(args.Args, " ")
	}
	if isDangerousCommand(fullCommand) {
		return nil, fmt.Errorf("command blocked: this command appears to be dangerous and could damage the system or delete files")
	}

	timeout := defaultCommandTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	workDir := workspacePath
	if args.WorkingDir != "" {
		valid, err := validateWorkspacePath(workspacePath, args.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
		workDir = valid
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, cmdArgs := args.Command, args.Args
	if len(cmdArgs) == 0 {
		if parts := strings.Fields(args.Command); len(parts) > 1 {
			name, cmdArgs = parts[0], parts[1:]
		}
	}
	cmd := exec.CommandContext(cmdCtx, name, cmdArgs...) //#nosec G204 -- intentional command execution
	cmd.Dir = workDir
	if args.Stdin != "" {
		cmd.Stdin = strings.NewReader(args.Stdin)
	}
	stdout := &cappedBuffer{limit: maxCommandOutput}
	stderr := &cappedBuffer{limit: maxCommandOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command failed: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return &commandResult{
		Command:   fullCommand,
		ExitCode:  exitCode,
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Success:   exitCode == 0,
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}

// RegisterSystemTools registers system_info and, when workspacePath is set,
// execute_command.
func (r *Registry) RegisterSystemTools(workspacePath string) {
	r.logger.Info().Msg("Registering system tools in registry")
	r.Register(SystemInfoTool())
	if workspacePath != "" {
		r.Register(ExecuteCommandTool(workspacePath))
	}
}
