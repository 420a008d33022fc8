// Package browser is the browser tool: it hands natural-language tasks to a
// hosted browser-automation runner and follows them to completion.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/restclient"
)

const (
	service = "Browser"

	defaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Minute
)

// Task states after which a task never changes again.
var terminal = map[string]bool{
	"finished": true,
	"failed":   true,
	"stopped":  true,
}

// Program returns the browser command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "browser",
		Short: "run browser-automation tasks (BROWSER_API_KEY)",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "<task> [--wait] [--interval 5s] [--timeout 10m]",
				Short: "start a task, optionally waiting for its result",
				Run:   run,
			},
			{
				Name:  "status",
				Usage: "<id>",
				Short: "show a task's state and output",
				Run:   status,
			},
			{
				Name:  "stop",
				Usage: "<id>",
				Short: "stop a running task",
				Run:   stop,
			},
			{
				Name:  "list",
				Usage: "[--limit N] [--format table|json|csv]",
				Short: "list recent tasks",
				Run:   list,
			},
		},
	}
}

// task is the runner's view of one task.
type task struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	Status     string `json:"status"`
	Output     string `json:"output"`
	LiveURL    string `json:"live_url"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at"`
}

func client(env *cli.Env) (*resty.Client, error) {
	key := env.Config.Browser.APIKey
	if key == "" {
		return nil, cli.NotConfigured("Browser API key", "set BROWSER_API_KEY")
	}
	return restclient.New(env, env.Config.Browser.URL).SetAuthToken(key), nil
}

func run(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("task"); err != nil {
		return err
	}
	interval, err := a.Duration("interval", defaultInterval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return cli.Usagef("--interval must be positive")
	}
	timeout, err := a.Duration("timeout", defaultTimeout)
	if err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}

	var created task
	resp, err := c.R().
		SetContext(ctx).
		SetBody(map[string]string{"task": strings.Join(a.Positional, " ")}).
		SetResult(&created).
		Post("/run-task")
	if err := restclient.Check(service, resp, err); err != nil {
		return err
	}

	env.Printf("Task created: %s\n", created.ID)
	if created.LiveURL != "" {
		env.Printf("Live view: %s\n", created.LiveURL)
	}
	if !a.Bool("wait") {
		return nil
	}

	t, err := wait(ctx, c, created.ID, interval, timeout)
	if err != nil {
		return err
	}
	printTask(env, t)
	if t.Status != "finished" {
		return fmt.Errorf("task %s ended with status %s", t.ID, t.Status)
	}
	return nil
}

// wait polls the task once per interval until it reaches a terminal state
// or timeout elapses.
func wait(ctx context.Context, c *resty.Client, id string, interval, timeout time.Duration) (*task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	last := "pending"
	for {
		t, err := fetch(ctx, c, id)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("task %s still %s after %s", id, last, timeout)
			}
			return nil, err
		}
		slog.Debug("task poll", "id", id, "status", t.Status)
		if terminal[t.Status] {
			return t, nil
		}
		last = t.Status

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("task %s still %s after %s", id, last, timeout)
			}
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func fetch(ctx context.Context, c *resty.Client, id string) (*task, error) {
	var t task
	resp, err := c.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&t).
		Get("/task/{id}")
	if err := restclient.Check(service, resp, err); err != nil {
		return nil, err
	}
	return &t, nil
}

func status(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("id"); err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}
	t, err := fetch(ctx, c, a.Arg(0))
	if err != nil {
		return err
	}
	printTask(env, t)
	return nil
}

func stop(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("id"); err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}

	resp, err := c.R().
		SetContext(ctx).
		SetQueryParam("task_id", a.Arg(0)).
		Put("/stop-task")
	if err := restclient.Check(service, resp, err); err != nil {
		return err
	}
	env.Printf("Stopped task %s\n", a.Arg(0))
	return nil
}

func list(ctx context.Context, env *cli.Env, a *args.Args) error {
	limit, err := a.Int("limit", 10)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}

	var out struct {
		Tasks []task `json:"tasks"`
	}
	resp, err := c.R().
		SetContext(ctx).
		SetQueryParam("page_size", fmt.Sprint(limit)).
		SetResult(&out).
		Get("/tasks")
	if err := restclient.Check(service, resp, err); err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"id", "status", "created_at", "task"}}
	for _, t := range out.Tasks {
		res.Rows = append(res.Rows, []any{t.ID, t.Status, t.CreatedAt, t.Task})
	}
	return format.Write(env.Stdout, mode, res)
}

func printTask(env *cli.Env, t *task) {
	env.Printf("ID:       %s\n", t.ID)
	env.Printf("Status:   %s\n", t.Status)
	if t.Task != "" {
		env.Printf("Task:     %s\n", t.Task)
	}
	if t.CreatedAt != "" {
		env.Printf("Created:  %s\n", t.CreatedAt)
	}
	if t.FinishedAt != "" {
		env.Printf("Finished: %s\n", t.FinishedAt)
	}
	if t.Output != "" {
		env.Printf("\n%s\n", t.Output)
	}
}
