package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authorize access to your Zotero library in the browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "oauth--client-key", Usage: "OAuth client key"},
			&cli.StringFlag{Name: "oauth--client-secret", Usage: "OAuth client secret"},
			&cli.StringFlag{Name: "callback--host", Usage: "redirect listener host"},
			&cli.IntFlag{Name: "callback--port", Usage: "redirect listener port"},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	info, err := s.app.Login(ctx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.Root().Writer, "Logged in as %s (user ID %s)\n", displayName(info.Username), info.UserID)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "remove stored credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			if err := s.app.Logout(ctx); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, "Logged out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the account of the stored credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			creds := s.app.Credentials(ctx)
			if creds == nil {
				_, _ = fmt.Fprintln(cmd.Root().Writer, "Not logged in")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.Root().Writer, "%s (user ID %s)\n", displayName(creds.Username), creds.UserID)
			return nil
		},
	}
}

func setKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-key",
		Usage: "store an existing API key instead of logging in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", Usage: "API key (prompted for when omitted)"},
			&cli.StringFlag{Name: "user-id", Usage: "Zotero user ID", Required: true},
			&cli.StringFlag{Name: "username", Usage: "Zotero username"},
		},
		Action: setKeyAction,
	}
}

func setKeyAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	apiKey := cmd.String("api-key")
	if apiKey == "" {
		apiKey, err = promptSecret(cmd.Root().ErrWriter, os.Stdin, "API key: ")
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	info, err := s.app.SetKey(ctx, apiKey, cmd.String("user-id"), cmd.String("username"))
	if err != nil {
		return fmt.Errorf("storing API key: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.Root().Writer, "Stored API key for %s (user ID %s)\n", displayName(info.Username), info.UserID)
	return nil
}

// promptSecret reads a line without echo when in is a terminal.
func promptSecret(w io.Writer, in *os.File, prompt string) (string, error) {
	if w == nil {
		w = os.Stderr
	}
	_, _ = fmt.Fprint(w, prompt)

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func displayName(username string) string {
	if username == "" {
		return "unknown user"
	}
	return username
}
