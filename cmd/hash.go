package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/srt-watcher/internal/auth"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Generate a PANEL_PASSWORD_HASH value (bcrypt, read from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Password: ")
			pw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			if len(pw) == 0 {
				return errors.New("empty password")
			}
			hash, err := auth.HashPassword(string(pw))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "export PANEL_PASSWORD_HASH='%s'\n", hash)
			return nil
		},
	}
}
