package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/voyagehq/voyage-cli/internal/auth"
	"github.com/voyagehq/voyage-cli/internal/callback"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate against the active environment",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "callback--port",
				Usage: "local OAuth callback port",
				Value: callback.DefaultPort,
			},
			&cli.DurationFlag{
				Name:  "callback--timeout",
				Usage: "how long to wait for the OAuth redirect",
				Value: callback.DefaultTimeout,
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	env, err := cfg.ActiveEnvironment()
	if err != nil {
		return err
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	listener, err := callback.Start(cfg.Callback.Port)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = listener.Close(closeCtx)
	}()

	session, err := manager.BeginLogin(ctx, env.LoginConfig(), listener.RedirectURI())
	if err != nil {
		return err
	}

	fmt.Println("Complete the login in your browser. If it did not open, use this URL:")
	fmt.Println()
	fmt.Println("  " + session.AuthURL)
	fmt.Println()
	fmt.Println("Waiting for the browser callback...")

	code, err := listener.Wait(ctx, cfg.Callback.Timeout)
	switch {
	case err == nil:
		// Redirect captured.
	case errors.Is(err, callback.ErrTimeout):
		code, err = promptForCode(session)
		if err != nil {
			return fmt.Errorf("no authorization callback received, try again: %w", callback.ErrTimeout)
		}
	default:
		var authErr *callback.AuthorizationError
		if errors.As(err, &authErr) {
			return fmt.Errorf("%w (check your credentials and requested scopes)", authErr)
		}
		return err
	}

	if err := manager.CompleteLogin(ctx, cfg.Environment, session, code); err != nil {
		return err
	}

	fmt.Printf("Logged in to environment %q.\n", cfg.Environment)
	return nil
}

// promptForCode reads a pasted redirect URL or raw authorization code
// from stdin when the callback never arrived. Only offered on a
// terminal; the echoed state is validated against the login attempt.
func promptForCode(session *auth.LoginSession) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal")
	}

	fmt.Print("Paste the redirect URL or authorization code: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading authorization input: %w", err)
	}

	code, state := parseAuthorizationReply(line)
	if code == "" {
		return "", errors.New("authorization code not found in input")
	}
	if err := session.VerifyState(state); err != nil {
		return "", err
	}

	return code, nil
}

// parseAuthorizationReply accepts either a full redirect URL or a bare
// authorization code.
func parseAuthorizationReply(line string) (code, state string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}

	if parsed, err := url.Parse(line); err == nil && parsed.Query().Get("code") != "" {
		return parsed.Query().Get("code"), parsed.Query().Get("state")
	}
	return line, ""
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "remove the stored credential for the active environment",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	if err := manager.Logout(ctx, cfg.Environment); err != nil {
		return err
	}

	fmt.Printf("Logged out of environment %q.\n", cfg.Environment)
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show authentication status for the active environment",
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	state := manager.State(ctx, cfg.Environment)
	if !state.Authenticated {
		fmt.Printf("Environment %q: not authenticated. Run `voyage login`.\n", cfg.Environment)
		return nil
	}

	fmt.Printf("Environment %q: authenticated\n", cfg.Environment)
	fmt.Printf("  Token type: %s\n", state.TokenType)
	if state.Scope != "" {
		fmt.Printf("  Scope:      %s\n", state.Scope)
	}
	if state.ExpiresAt != nil {
		fmt.Printf("  Expires:    %s\n", state.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Expires:    never\n")
	}
	if !state.StoredAt.IsZero() {
		fmt.Printf("  Stored:     %s\n", state.StoredAt.Format(time.RFC3339))
	}
	return nil
}
