// cmd/libractl/main.go
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"libraledger/internal/clients"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	server  string
	timeout time.Duration
	asJSON  bool
}

func (a *app) client() *clients.CirculationClient {
	return clients.NewCirculationClient(a.server, a.timeout)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "libractl",
		Short:        "Command line client for the circulation service",
		SilenceUsage: true,
	}

	server := os.Getenv("LIBRACTL_SERVER")
	if server == "" {
		server = "http://localhost:8082"
	}
	root.PersistentFlags().StringVar(&a.server, "server", server, "circulation service base URL")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newBorrowCmd(a),
		newReturnCmd(a),
		newFinesCmd(a),
		newMemberCmd(a),
		newCopyCmd(a),
	)
	return root
}

// promptPassword reads without echo from a terminal, or a single line from
// piped input.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
