// Command nickauthctl performs operator tasks against the configured
// credential store.
//
//	nickauthctl hash
//	nickauthctl create-admin -nickname root -email ops@example.com
//	nickauthctl unlock -nickname alice
//	nickauthctl revoke -nickname alice
//	nickauthctl stats
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/internal/bootstrap"
	"github.com/MrEthical07/nickauth/internal/config"
	"github.com/MrEthical07/nickauth/internal/logging"
	"github.com/MrEthical07/nickauth/password"
)

const usage = `usage: nickauthctl <command> [flags]

commands:
  hash           read a password and print its argon2id hash
  create-admin   register an account and grant it the admin role
  unlock         clear the failure counter and lock of an account
  revoke         drop every refresh token of an account
  stats          print account counts by role and status
`

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// readPassword reads one secret without echo.
	readPassword func(prompt string) (string, error)
	// open builds an engine over the configured store.
	open func(ctx context.Context) (*nickauth.Engine, func(), error)
}

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.readPassword = a.terminalPassword
	a.open = openEngine
	os.Exit(a.run(context.Background(), os.Args[1:]))
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash":
		err = a.hash(args[1:])
	case "create-admin":
		err = a.createAdmin(ctx, args[1:])
	case "unlock":
		err = a.unlock(ctx, args[1:])
	case "revoke":
		err = a.revoke(ctx, args[1:])
	case "stats":
		err = a.stats(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return 0
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 2
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "nickauthctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func (a *app) hash(args []string) error {
	fs := a.flagSet("hash")
	fromStdin := fs.Bool("stdin", false, "read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		plain string
		err   error
	)
	if *fromStdin {
		plain, err = bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		plain = strings.TrimRight(plain, "\r\n")
	} else if plain, err = a.readPassword("Password: "); err != nil {
		return err
	}
	if err := password.CheckLength(plain); err != nil {
		return err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	encoded, err := hasher.Hash(plain)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, encoded)
	return nil
}

func (a *app) createAdmin(ctx context.Context, args []string) error {
	fs := a.flagSet("create-admin")
	nickname := fs.String("nickname", "", "account nickname")
	email := fs.String("email", "", "account email (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nickname == "" {
		return errors.New("-nickname is required")
	}

	plain, err := a.readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := a.readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if plain != confirm {
		return errors.New("passwords do not match")
	}

	engine, closeFn, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := engine.Register(ctx, nickauth.RegisterInput{
		Nickname: *nickname,
		Password: plain,
		Email:    *email,
	})
	if err != nil {
		return describe(err)
	}
	// Register issued a session; the operator does not need it.
	if _, err := engine.RevokeSessions(ctx, res.User.ID); err != nil {
		return describe(err)
	}
	profile, err := engine.SetUserRole(ctx, res.User.ID, nickauth.RoleAdmin)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.stdout, "created admin %s (%s)\n", profile.Nickname, profile.ID)
	return nil
}

func (a *app) unlock(ctx context.Context, args []string) error {
	return a.byNickname(ctx, "unlock", args, func(engine *nickauth.Engine, p *nickauth.PublicProfile) error {
		if _, err := engine.UnlockUser(ctx, p.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "unlocked %s\n", p.Nickname)
		return nil
	})
}

func (a *app) revoke(ctx context.Context, args []string) error {
	return a.byNickname(ctx, "revoke", args, func(engine *nickauth.Engine, p *nickauth.PublicProfile) error {
		n, err := engine.RevokeSessions(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "revoked %d session(s) of %s\n", n, p.Nickname)
		return nil
	})
}

func (a *app) byNickname(ctx context.Context, name string, args []string, fn func(*nickauth.Engine, *nickauth.PublicProfile) error) error {
	fs := a.flagSet(name)
	nickname := fs.String("nickname", "", "account nickname")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nickname == "" {
		return errors.New("-nickname is required")
	}

	engine, closeFn, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	p, err := engine.FindByNickname(ctx, *nickname)
	if err != nil {
		return describe(err)
	}
	return describe(fn(engine, p))
}

func (a *app) stats(ctx context.Context) error {
	engine, closeFn, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := engine.UserStats(ctx)
	if err != nil {
		return describe(err)
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) terminalPassword(prompt string) (string, error) {
	fmt.Fprint(a.stderr, prompt)
	defer fmt.Fprintln(a.stderr)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// describe expands validation errors into their field messages.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var e *nickauth.Error
	if !errors.As(err, &e) || len(e.Fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Errorf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func openEngine(ctx context.Context) (*nickauth.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New("warn", "console", "nickauthctl")
	if err != nil {
		return nil, nil, err
	}

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	builder := nickauth.New().
		WithConfig(cfg.EngineConfig()).
		WithStore(backend.Store).
		WithLogger(logger)
	if backend.Redis != nil {
		builder = builder.WithRedis(backend.Redis)
	}
	engine, err := builder.Build()
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return engine, func() {
		engine.Close()
		if err := backend.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}
