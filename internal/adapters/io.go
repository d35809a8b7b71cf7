package adapters

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TerminalIO is the default ports.IOHandler: it prints descriptions and
// command/function output to an output stream and reads yes/no prompt
// answers from an input stream (adapted from the teacher's
// InteractiveCollector terminal-prompt style).
type TerminalIO struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalIO builds a TerminalIO reading prompts from in and writing
// output/prompts to out.
func NewTerminalIO(in io.Reader, out io.Writer) *TerminalIO {
	return &TerminalIO{in: bufio.NewReader(in), out: out}
}

func (t *TerminalIO) Prompt(nodeID, nodeName, promptText string) (bool, error) {
	fmt.Fprintf(t.out, "\n[%s] %s\n%s (y/n): ", nodeID, nodeName, promptText)
	line, err := t.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read prompt response: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (t *TerminalIO) Description(nodeID, nodeName, text string) {
	fmt.Fprintf(t.out, "\n[%s] %s\n%s\n", nodeID, nodeName, text)
}

func (t *TerminalIO) CommandOutput(nodeID, nodeName, description, stdout, stderr string) {
	fmt.Fprintf(t.out, "\n[%s] %s\n", nodeID, nodeName)
	if description != "" {
		fmt.Fprintln(t.out, description)
	}
	if stdout != "" {
		fmt.Fprintf(t.out, "stdout:\n%s\n", stdout)
	}
	if stderr != "" {
		fmt.Fprintf(t.out, "stderr:\n%s\n", stderr)
	}
}

func (t *TerminalIO) FunctionOutput(nodeID, nodeName, description, resultText string) {
	fmt.Fprintf(t.out, "\n[%s] %s\n", nodeID, nodeName)
	if description != "" {
		fmt.Fprintln(t.out, description)
	}
	if resultText != "" {
		fmt.Fprintf(t.out, "result: %s\n", resultText)
	}
}

// AutoApproveIO answers every prompt affirmatively without reading input,
// for non-interactive ("yes to all") runs, and still reports output to out.
type AutoApproveIO struct {
	out io.Writer
}

// NewAutoApproveIO builds an AutoApproveIO writing output/prompts to out.
func NewAutoApproveIO(out io.Writer) *AutoApproveIO {
	return &AutoApproveIO{out: out}
}

func (a *AutoApproveIO) Prompt(nodeID, nodeName, promptText string) (bool, error) {
	fmt.Fprintf(a.out, "\n[%s] %s\n%s (auto-approved)\n", nodeID, nodeName, promptText)
	return true, nil
}

func (a *AutoApproveIO) Description(nodeID, nodeName, text string) {
	fmt.Fprintf(a.out, "\n[%s] %s\n%s\n", nodeID, nodeName, text)
}

func (a *AutoApproveIO) CommandOutput(nodeID, nodeName, description, stdout, stderr string) {
	fmt.Fprintf(a.out, "\n[%s] %s\n", nodeID, nodeName)
	if stdout != "" {
		fmt.Fprintf(a.out, "stdout:\n%s\n", stdout)
	}
	if stderr != "" {
		fmt.Fprintf(a.out, "stderr:\n%s\n", stderr)
	}
}

func (a *AutoApproveIO) FunctionOutput(nodeID, nodeName, description, resultText string) {
	fmt.Fprintf(a.out, "\n[%s] %s\nresult: %s\n", nodeID, nodeName, resultText)
}
