// Package cli implements the operator command-line client: payload
// management, queue introspection and snapshot control over the server's
// HTTP API.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/dropvault/internal/client/api"
	"github.com/dmitrijs2005/dropvault/internal/client/config"
)

// API is the server surface the CLI drives. *api.Client satisfies it.
type API interface {
	Authenticate(ctx context.Context, secret string) (string, error)
	SetToken(token string)
	CreatePayload(ctx context.Context, name string, contentRefs []string) (*api.Payload, error)
	ListPayloads(ctx context.Context) ([]api.Payload, error)
	DeletePayload(ctx context.Context, code string) error
	PendingTasks(ctx context.Context) ([]api.PendingTask, error)
	Snapshot(ctx context.Context) error
	Restore(ctx context.Context) (int, error)
}

type App struct {
	api API
	out io.Writer
}

func NewApp(cfg *config.Config) *App {
	return &App{
		api: api.New(cfg.ServerEndpointAddr, cfg.RequestTimeout),
		out: os.Stdout,
	}
}

const usage = `usage: dropvault-cli [flags] <command> [command flags]

commands:
  auth      -secret <s>              obtain an operator token
  create    -name <n> -refs <r1,r2>  register a payload, print its code
  list                               list payloads with access counts
  delete    -code <c>                delete a payload and revoke its copies
  tasks                              show pending purge tasks
  snapshot                           push all tables to the blob sink
  restore                            reinstall tables from the last snapshots

The operator token is read from the DROPVAULT_TOKEN environment variable.
`

var commands = map[string]struct{}{
	"auth": {}, "create": {}, "list": {}, "delete": {},
	"tasks": {}, "snapshot": {}, "restore": {},
}

// Run executes one command. Arguments before the command belong to the
// config layer and are skipped here.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd, rest := splitCommand(args)
	if cmd == "" {
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("no command given")
	}

	if token := os.Getenv("DROPVAULT_TOKEN"); token != "" {
		a.api.SetToken(token)
	}

	switch cmd {
	case "auth":
		return a.runAuth(ctx, rest)
	case "create":
		return a.runCreate(ctx, rest)
	case "list":
		return a.runList(ctx)
	case "delete":
		return a.runDelete(ctx, rest)
	case "tasks":
		return a.runTasks(ctx)
	case "snapshot":
		return a.runSnapshot(ctx)
	case "restore":
		return a.runRestore(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// splitCommand finds the first recognized command in args and returns it
// with the arguments that follow.
func splitCommand(args []string) (string, []string) {
	for i, arg := range args {
		if _, ok := commands[arg]; ok {
			return arg, args[i+1:]
		}
	}
	return "", nil
}

func (a *App) runAuth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	secret := fs.String("secret", "", "operator secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("auth: -secret is required")
	}

	token, err := a.api.Authenticate(ctx, *secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *App) runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "payload name")
	refs := fs.String("refs", "", "comma-separated content references")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refs == "" {
		return fmt.Errorf("create: -refs is required")
	}

	payload, err := a.api.CreatePayload(ctx, *name, strings.Split(*refs, ","))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, payload.Code)
	return nil
}

func (a *App) runList(ctx context.Context) error {
	payloads, err := a.api.ListPayloads(ctx)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		fmt.Fprintf(a.out, "%s\t%s\t%d refs\t%d accesses\n",
			p.Code, p.Name, len(p.ContentRefs), p.AccessCount)
	}
	return nil
}

func (a *App) runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	code := fs.String("code", "", "payload code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *code == "" {
		return fmt.Errorf("delete: -code is required")
	}

	if err := a.api.DeletePayload(ctx, *code); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", *code)
	return nil
}

func (a *App) runTasks(ctx context.Context) error {
	tasks, err := a.api.PendingTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		state := fmt.Sprintf("%d min left", t.MinutesRemaining)
		if t.Overdue {
			state = "overdue"
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\n", t.ID, t.SourcePayload, t.DueAt.Format("2006-01-02 15:04:05"), state)
	}
	return nil
}

func (a *App) runSnapshot(ctx context.Context) error {
	if err := a.api.Snapshot(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "snapshot complete")
	return nil
}

func (a *App) runRestore(ctx context.Context) error {
	n, err := a.api.Restore(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "restored %d tables\n", n)
	return nil
}
