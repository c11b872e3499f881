package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question loop",
	Long: `Reads questions line by line and prints each answer prefixed with "Bot:".
Type exit or quit to leave. Errors are printed and the loop continues.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// asker is the part of the session the loop needs.
type asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

func runChat(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.session.Close()

	if rt.cfg.APIKey() == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Printf("%s is not set. Enter your OpenAI API key: ", rt.cfg.Credential.APIKeyEnv)
		key := readPassword()
		cmd.Println()
		if err := rt.session.SetCredential(key); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	}
	return runLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), rt.session)
}

// runLoop answers each line read from in until exit, quit or end of input.
func runLoop(ctx context.Context, in io.Reader, out io.Writer, a asker) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprintln(out, `Ask about the knowledge base. Type "exit" or "quit" to leave.`)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if isExit(question) {
			return nil
		}
		answer, err := a.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Bot: %s\n", answer)
	}
}

func isExit(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit":
		return true
	}
	return false
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read password without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
