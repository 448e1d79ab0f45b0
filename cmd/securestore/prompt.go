package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/benaskins/securestore/internal/policy"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readHidden prompts on stderr and reads a line without echo.
func readHidden(label string) ([]byte, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return b, nil
}

// readValue reads a secret from a hidden prompt or, when piped, from stdin
// with one trailing newline removed.
func readValue() ([]byte, error) {
	if stdinIsTerminal() {
		return readHidden("Enter secret value: ")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r")), nil
}

// terminalPrompt asks for the passcode when the session is interactive.
func terminalPrompt() policy.PromptFunc {
	if !stdinIsTerminal() {
		return nil
	}
	return func(ctx context.Context, tag policy.Tag) ([]byte, error) {
		return readHidden(fmt.Sprintf("Passcode (%s): ", tag))
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
