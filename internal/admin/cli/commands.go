package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
)

// adminIP marks audit entries written by the tool.
const adminIP = "identityctl"

func (a *App) migrate(ctx context.Context, _ *flag.FlagSet, _ []string) error {
	if err := a.env.Store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func (a *App) createUser(ctx context.Context, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "email address")
	fromStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("create-user: -email is required")
	}

	pw, err := a.password(*fromStdin)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	id, err := a.env.Identity.Signup(ctx, *email, string(pw), adminIP)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "user created: %s\n", id)
	return nil
}

// password reads from stdin, or twice from the terminal with confirmation.
func (a *App) password(fromStdin bool) ([]byte, error) {
	if fromStdin {
		line, err := ReadLine(a.reader)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		return []byte(line), nil
	}

	pw, err := GetPassword(a.out, "Enter password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := GetPassword(a.out, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if string(pw) != string(confirm) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func (a *App) disable(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return a.setActive(ctx, fs, args, false)
}

func (a *App) enable(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return a.setActive(ctx, fs, args, true)
}

func (a *App) setActive(ctx context.Context, fs *flag.FlagSet, args []string, active bool) error {
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("%s: -email is required", fs.Name())
	}

	id, err := a.env.Identity.SetUserActive(ctx, *email, active)
	if err != nil {
		return describe(err)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Fprintf(a.out, "user %s %s\n", id, state)
	return nil
}

func (a *App) revokeSessions(ctx context.Context, fs *flag.FlagSet, args []string) error {
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := a.env.Identity.RevokeAllSessions(ctx, *user)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "revoked %d session(s)\n", n)
	return nil
}

func (a *App) purgeTokens(ctx context.Context, _ *flag.FlagSet, _ []string) error {
	n, err := a.env.Store.PurgeExpiredRefreshTokens(ctx, a.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "purged %d expired token(s)\n", n)
	return nil
}

func (a *App) validate(ctx context.Context, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		line, err := ReadLine(a.reader)
		if err != nil {
			return errors.New("validate: -token is required")
		}
		*token = line
	}

	userID, err := a.env.RPC.ValidateToken(ctx, *token)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "valid, user %s\n", userID)
	return nil
}

func (a *App) getUser(ctx context.Context, fs *flag.FlagSet, args []string) error {
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := a.env.RPC.GetUser(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "id:       %s\nactive:   %t\ncreated:  %s\n", u.ID, u.IsActive, u.CreatedAt.Format(time.RFC3339))
	return nil
}

func (a *App) health(ctx context.Context, _ *flag.FlagSet, _ []string) error {
	st, err := a.env.RPC.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, st)
	return nil
}

// describe turns service sentinels into operator-facing messages.
func describe(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return err
	case errors.Is(err, common.ErrAlreadyExists):
		return errors.New("a user with this email already exists")
	case errors.Is(err, common.ErrorNotFound):
		return errors.New("user not found")
	case errors.Is(err, common.ErrUnavailable):
		return fmt.Errorf("database unavailable: %w", err)
	default:
		return err
	}
}
