// Package cli implements identityctl, the operator tool for the identity
// service. Local commands work directly against the credential store;
// remote commands call the internal gRPC API of a running server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dmitrijs2005/identity/internal/client/rpc"
	"github.com/dmitrijs2005/identity/internal/flagx"
)

// Identity is the part of the identity service the tool drives.
type Identity interface {
	Signup(ctx context.Context, email, password, clientIP string) (string, error)
	SetUserActive(ctx context.Context, email string, active bool) (string, error)
	RevokeAllSessions(ctx context.Context, userID string) (int64, error)
}

type Store interface {
	Migrate(ctx context.Context) error
	PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type RPC interface {
	ValidateToken(ctx context.Context, token string) (string, error)
	GetUser(ctx context.Context, userID string) (*rpc.User, error)
	Health(ctx context.Context) (string, error)
}

// Env carries whatever the command needs. Fields a command does not use
// may be nil.
type Env struct {
	Identity Identity
	Store    Store
	RPC      RPC
}

type App struct {
	env    Env
	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time
}

func New(env Env, in io.Reader, out io.Writer) *App {
	return &App{env: env, reader: bufio.NewReader(in), out: out, now: time.Now}
}

// Needs says which dependencies a command requires.
type Needs int

const (
	NeedsNothing Needs = iota
	NeedsStore
	NeedsRPC
)

type command struct {
	needs Needs
	usage string
	flags []string
	run   func(a *App, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"migrate":         {needs: NeedsStore, usage: "apply database migrations", run: (*App).migrate},
	"create-user":     {needs: NeedsStore, usage: "-email E [-password-stdin]  register a user", flags: []string{"-email", "-password-stdin"}, run: (*App).createUser},
	"disable":         {needs: NeedsStore, usage: "-email E  disable a user and revoke their sessions", flags: []string{"-email"}, run: (*App).disable},
	"enable":          {needs: NeedsStore, usage: "-email E  re-enable a user", flags: []string{"-email"}, run: (*App).enable},
	"revoke-sessions": {needs: NeedsStore, usage: "-user ID  revoke every refresh token of a user", flags: []string{"-user"}, run: (*App).revokeSessions},
	"purge-tokens":    {needs: NeedsStore, usage: "delete expired refresh tokens", run: (*App).purgeTokens},
	"validate":        {needs: NeedsRPC, usage: "-token T  validate an access token against a running server", flags: []string{"-token"}, run: (*App).validate},
	"get-user":        {needs: NeedsRPC, usage: "-user ID  look a user up on a running server", flags: []string{"-user"}, run: (*App).getUser},
	"health":          {needs: NeedsRPC, usage: "query the gRPC health service", run: (*App).health},
}

var ErrUnknownCommand = errors.New("unknown command")

// CommandNeeds reports what name requires; unknown names need nothing so
// that Run can print usage.
func CommandNeeds(name string) Needs {
	return commands[name].needs
}

// Run executes args[0] with the rest of args as its flags. Flags that
// belong to the configuration layer are ignored here.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		a.usage()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	switch cmd.needs {
	case NeedsStore:
		if a.env.Store == nil || a.env.Identity == nil {
			return fmt.Errorf("%s: database is not configured", name)
		}
	case NeedsRPC:
		if a.env.RPC == nil {
			return fmt.Errorf("%s: server address is not configured", name)
		}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return cmd.run(a, ctx, fs, flagx.FilterArgs(args[1:], cmd.flags))
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: identityctl <command> [flags]")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Commands:")

	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(a.out, "  %-16s %s\n", n, commands[n].usage)
	}
}
