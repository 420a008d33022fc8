// Package salesforce is the Salesforce tool: SOQL queries and sObject CRUD
// over the REST API.
package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"resty.dev/v3"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/restclient"
)

const service = "Salesforce"

// Program returns the salesforce command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "salesforce",
		Short: "query and edit Salesforce records",
		Commands: []*cli.Command{
			{
				Name:  "query",
				Usage: "<soql> [--limit N] [--format table|json|csv]",
				Short: "run a SOQL query, following result pages",
				Run:   query,
			},
			{
				Name:       "get",
				Usage:      "<sobject> <id> [--field F]*",
				Short:      "fetch one record",
				Repeatable: []string{"field"},
				Run:        get,
			},
			{
				Name:  "create",
				Usage: "<sobject> --data JSON",
				Short: "create a record",
				Run:   create,
			},
			{
				Name:  "update",
				Usage: "<sobject> <id> --data JSON",
				Short: "update fields of a record",
				Run:   update,
			},
			{
				Name:  "delete",
				Usage: "<sobject> <id>",
				Short: "delete a record",
				Run:   remove,
			},
			{
				Name:  "describe",
				Usage: "<sobject> [--format table|json|csv]",
				Short: "list an sObject's fields",
				Run:   describe,
			},
		},
	}
}

// withAPI authenticates and runs fn against the versioned data API. A 401
// on a cached session clears the cache so the next run logs in again.
func withAPI(ctx context.Context, env *cli.Env, fn func(c *resty.Client) error) error {
	s, err := authenticate(ctx, env)
	if err != nil {
		return err
	}

	base := strings.TrimRight(s.instanceURL, "/") + "/services/data/" + env.Config.Salesforce.APIVersion
	c := restclient.New(env, base).SetAuthToken(s.token)

	err = fn(c)
	var apiErr *cli.APIError
	if s.cached && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		slog.Debug("dropping revoked session", "service", service)
		if rmErr := tokenStore(env.Config).Remove(""); rmErr != nil {
			slog.Warn("failed to clear token cache", "error", rmErr)
		}
	}
	return err
}

// parseData validates --data as a JSON object before any network call.
func parseData(a *args.Args) (map[string]any, error) {
	if err := a.Require("data"); err != nil {
		return nil, err
	}
	raw, _ := a.String("data")
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, cli.Usagef("--data must be a JSON object: %v", err)
	}
	return fields, nil
}

type queryPage struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

func query(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("soql"); err != nil {
		return err
	}
	limit, err := a.Int("limit", 0)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	soql := strings.Join(a.Positional, " ")

	return withAPI(ctx, env, func(c *resty.Client) error {
		var records []map[string]any

		var page queryPage
		resp, err := c.R().SetContext(ctx).SetQueryParam("q", soql).SetResult(&page).Get("/query")
		for {
			if err := restclient.Check(service, resp, err); err != nil {
				return err
			}
			records = append(records, page.Records...)
			if page.Done || page.NextRecordsURL == "" || (limit > 0 && len(records) >= limit) {
				break
			}
			next := page.NextRecordsURL
			page = queryPage{}
			// nextRecordsUrl is host-relative and already carries the version.
			resp, err = c.R().SetContext(ctx).SetResult(&page).Get(instanceHost(c) + next)
		}

		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		for _, rec := range records {
			stripAttributes(rec)
		}
		return format.Write(env.Stdout, mode, format.FromRecords(records))
	})
}

// instanceHost returns the instance host of c's base URL.
func instanceHost(c *resty.Client) string {
	base := c.BaseURL()
	if i := strings.Index(base, "/services/"); i >= 0 {
		return base[:i]
	}
	return base
}

// stripAttributes removes the type/url metadata Salesforce attaches to every
// record, including related records.
func stripAttributes(rec map[string]any) {
	delete(rec, "attributes")
	for _, v := range rec {
		if nested, ok := v.(map[string]any); ok {
			stripAttributes(nested)
		}
	}
}

func get(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("sobject", "id"); err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}

	return withAPI(ctx, env, func(c *resty.Client) error {
		req := c.R().SetContext(ctx).SetPathParams(map[string]string{"sobject": a.Arg(0), "id": a.Arg(1)})
		if fields := a.Values("field"); len(fields) > 0 {
			req.SetQueryParam("fields", strings.Join(fields, ","))
		}

		var rec map[string]any
		resp, err := req.SetResult(&rec).Get("/sobjects/{sobject}/{id}")
		if err := restclient.Check(service, resp, err); err != nil {
			return err
		}
		stripAttributes(rec)
		return format.Write(env.Stdout, mode, format.Fields(rec))
	})
}

func create(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("sobject"); err != nil {
		return err
	}
	fields, err := parseData(a)
	if err != nil {
		return err
	}

	return withAPI(ctx, env, func(c *resty.Client) error {
		var out struct {
			ID      string `json:"id"`
			Success bool   `json:"success"`
		}
		resp, err := c.R().
			SetContext(ctx).
			SetPathParam("sobject", a.Arg(0)).
			SetBody(fields).
			SetResult(&out).
			Post("/sobjects/{sobject}")
		if err := restclient.Check(service, resp, err); err != nil {
			return err
		}
		env.Printf("Created %s %s\n", a.Arg(0), out.ID)
		return nil
	})
}

func update(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("sobject", "id"); err != nil {
		return err
	}
	fields, err := parseData(a)
	if err != nil {
		return err
	}

	return withAPI(ctx, env, func(c *resty.Client) error {
		resp, err := c.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"sobject": a.Arg(0), "id": a.Arg(1)}).
			SetBody(fields).
			Patch("/sobjects/{sobject}/{id}")
		if err := restclient.Check(service, resp, err); err != nil {
			return err
		}
		env.Printf("Updated %s %s\n", a.Arg(0), a.Arg(1))
		return nil
	})
}

func remove(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("sobject", "id"); err != nil {
		return err
	}

	return withAPI(ctx, env, func(c *resty.Client) error {
		resp, err := c.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"sobject": a.Arg(0), "id": a.Arg(1)}).
			Delete("/sobjects/{sobject}/{id}")
		if err := restclient.Check(service, resp, err); err != nil {
			return err
		}
		env.Printf("Deleted %s %s\n", a.Arg(0), a.Arg(1))
		return nil
	})
}

type describeResult struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Fields []struct {
		Name       string `json:"name"`
		Label      string `json:"label"`
		Type       string `json:"type"`
		Length     int    `json:"length"`
		Nillable   bool   `json:"nillable"`
		Updateable bool   `json:"updateable"`
	} `json:"fields"`
}

func describe(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("sobject"); err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}

	return withAPI(ctx, env, func(c *resty.Client) error {
		var out describeResult
		resp, err := c.R().
			SetContext(ctx).
			SetPathParam("sobject", a.Arg(0)).
			SetResult(&out).
			Get("/sobjects/{sobject}/describe")
		if err := restclient.Check(service, resp, err); err != nil {
			return err
		}

		res := &format.Result{Columns: []string{"name", "label", "type", "length", "nillable", "updateable"}}
		for _, f := range out.Fields {
			res.Rows = append(res.Rows, []any{f.Name, f.Label, f.Type, f.Length, f.Nillable, f.Updateable})
		}
		return format.Write(env.Stdout, mode, res)
	})
}
