package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errEmptyPassword = errors.New("empty password")

// readPassword reads a password from stdin when fromStdin is set, or
// prompts on the terminal without echo. The result is a locked buffer the
// caller hands to a login constructor, which destroys it.
func readPassword(cmd *cobra.Command, fromStdin bool) (*memguard.LockedBuffer, error) {
	var pw []byte
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("reading password from stdin: %w", err)
		}
		pw = []byte(strings.TrimRight(line, "\r\n"))
	} else {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, fmt.Errorf("stdin is not a terminal; use --password-stdin")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		var err error
		pw, err = term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
	}
	if len(pw) == 0 {
		return nil, errEmptyPassword
	}
	return memguard.NewBufferFromBytes(pw), nil
}
