// Package dynamics is the Dynamics 365 tool: record queries and CRUD over the
// Dataverse Web API.
package dynamics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/msauth"
	"github.com/shineum/skillkit/internal/msgraph"
)

const defaultTop = 50

// Program returns the dynamics command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "dynamics",
		Short: "query and edit Dynamics 365 (Dataverse) records",
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "--url https://<org>.crm.dynamics.com --client-id <id> [--tenant <tenant>]",
				Short: "store the environment URL and app registration",
				Run:   setup,
			},
			{
				Name:  "login",
				Short: "sign in and cache the token",
				Run:   login,
			},
			{
				Name:  "whoami",
				Short: "show the signed-in user and organization",
				Run:   whoami,
			},
			{
				Name:  "query",
				Usage: "<entity-set> [--select a,b] [--filter expr] [--orderby expr] [--top N] [--format table|json|csv]",
				Short: "list records of an entity set",
				Run:   query,
			},
			{
				Name:  "get",
				Usage: "<entity-set> <id> [--select a,b]",
				Short: "fetch one record",
				Run:   get,
			},
			{
				Name:  "create",
				Usage: "<entity-set> --data JSON",
				Short: "create a record",
				Run:   create,
			},
			{
				Name:  "update",
				Usage: "<entity-set> <id> --data JSON",
				Short: "update fields of an existing record",
				Run:   update,
			},
			{
				Name:  "delete",
				Usage: "<entity-set> <id>",
				Short: "delete a record",
				Run:   remove,
			},
		},
	}
}

// odataHeader asks for OData 4.0 and formatted values alongside raw ones.
func odataHeader() http.Header {
	return http.Header{
		"OData-MaxVersion": {"4.0"},
		"OData-Version":    {"4.0"},
		"Prefer":           {`odata.include-annotations="OData.Community.Display.V1.FormattedValue"`},
	}
}

func setup(_ context.Context, env *cli.Env, a *args.Args) error {
	if err := a.Require("url", "client-id"); err != nil {
		return err
	}
	rawURL, _ := a.String("url")
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return cli.Usagef("--url must be an https environment URL, got %q", rawURL)
	}
	clientID, _ := a.String("client-id")

	app := &msauth.App{
		ClientID: clientID,
		TenantID: a.StringOr("tenant", env.Config.Dynamics.TenantID),
		URL:      "https://" + u.Host,
	}
	path := appPath(env)
	if err := msauth.SaveApp(path, app); err != nil {
		return err
	}
	env.Printf("Saved app registration to %s\n", path)
	env.Printf("Next: dynamics login\n")
	return nil
}

func login(ctx context.Context, env *cli.Env, _ *args.Args) error {
	t, err := resolveTarget(env)
	if err != nil {
		return err
	}
	if _, err := resolver(env, t).ForceLogin(ctx, ""); err != nil {
		return err
	}
	env.Printf("Logged in to %s\n", t.url)
	return nil
}

func whoami(ctx context.Context, env *cli.Env, a *args.Args) error {
	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	var out map[string]any
	if err := c.Do(ctx, msgraph.Request{Method: http.MethodGet, Path: "/WhoAmI", Header: odataHeader()}, &out); err != nil {
		return err
	}
	return format.Print(env.Stdout, a, format.Fields(withoutAnnotations(out)))
}

func query(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("entity-set"); err != nil {
		return err
	}
	top, err := a.Int("top", defaultTop)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}

	q := url.Values{"$top": {strconv.Itoa(top)}}
	var columns []string
	if sel, ok := a.String("select"); ok {
		q.Set("$select", sel)
		columns = splitList(sel)
	}
	if filter, ok := a.String("filter"); ok {
		q.Set("$filter", filter)
	}
	if orderby, ok := a.String("orderby"); ok {
		q.Set("$orderby", orderby)
	}

	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	var page msgraph.Page[map[string]any]
	req := msgraph.Request{Method: http.MethodGet, Path: "/" + a.Arg(0), Query: q, Header: odataHeader()}
	if err := c.Do(ctx, req, &page); err != nil {
		return err
	}

	records := make([]map[string]any, 0, len(page.Value))
	for _, rec := range page.Value {
		records = append(records, withoutAnnotations(rec))
	}
	return format.Write(env.Stdout, mode, format.FromRecords(records, columns...))
}

func get(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("entity-set", "id"); err != nil {
		return err
	}
	var q url.Values
	if sel, ok := a.String("select"); ok {
		q = url.Values{"$select": {sel}}
	}

	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	var rec map[string]any
	req := msgraph.Request{Method: http.MethodGet, Path: recordPath(a), Query: q, Header: odataHeader()}
	if err := c.Do(ctx, req, &rec); err != nil {
		return err
	}
	return format.Print(env.Stdout, a, format.Fields(withoutAnnotations(rec)))
}

func create(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("entity-set"); err != nil {
		return err
	}
	fields, err := parseData(a)
	if err != nil {
		return err
	}

	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	entity, err := c.Create(ctx, "/"+a.Arg(0), fields)
	if err != nil {
		return err
	}
	env.Printf("Created %s %s\n", a.Arg(0), entityID(entity))
	return nil
}

func update(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("entity-set", "id"); err != nil {
		return err
	}
	fields, err := parseData(a)
	if err != nil {
		return err
	}

	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	// If-Match: * stops PATCH from creating the record when the id is unknown.
	req := msgraph.Request{
		Method: http.MethodPatch,
		Path:   recordPath(a),
		JSON:   fields,
		Header: http.Header{"If-Match": {"*"}},
	}
	if err := c.Do(ctx, req, nil); err != nil {
		return err
	}
	env.Printf("Updated %s %s\n", a.Arg(0), a.Arg(1))
	return nil
}

func remove(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("entity-set", "id"); err != nil {
		return err
	}
	c, err := client(ctx, env)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, recordPath(a)); err != nil {
		return err
	}
	env.Printf("Deleted %s %s\n", a.Arg(0), a.Arg(1))
	return nil
}

func recordPath(a *args.Args) string {
	return "/" + a.Arg(0) + "(" + a.Arg(1) + ")"
}

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

// entityID extracts the key from an entity URL such as
// https://org.crm.dynamics.com/api/data/v9.2/accounts(<guid>).
func entityID(entity string) string {
	open := strings.LastIndex(entity, "(")
	if open < 0 || !strings.HasSuffix(entity, ")") {
		return entity
	}
	return entity[open+1 : len(entity)-1]
}

// withoutAnnotations drops @odata.* and other annotation keys, keeping
// formatted values under a readable name.
func withoutAnnotations(rec map[string]any) map[string]any {
	const formatted = "@OData.Community.Display.V1.FormattedValue"
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if name, ok := strings.CutSuffix(k, formatted); ok {
			out[name+"_display"] = v
			continue
		}
		if strings.Contains(k, "@") {
			continue
		}
		out[k] = v
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
