// Package sharepoint is the SharePoint tool: site search and document
// library file operations through Graph.
package sharepoint

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/msauth"
	"github.com/shineum/skillkit/internal/msgraph"
)

const maxListItems = 200

var tool = &msauth.Tool{
	Name:  "sharepoint",
	Label: "SharePoint",
	Scopes: []string{
		"User.Read",
		"Sites.ReadWrite.All",
		"Files.ReadWrite.All",
		"offline_access",
	},
}

// Program returns the sharepoint command set.
func Program() *cli.Program {
	cmds := tool.Commands()
	cmds = append(cmds,
		&cli.Command{
			Name:  "sites",
			Usage: "<query> [--account email] [--format table|json|csv]",
			Short: "search sites",
			Run:   sites,
		},
		&cli.Command{
			Name:  "ls",
			Usage: "<site-id> [path] [--account email] [--format table|json|csv]",
			Short: "list a folder of the site's default document library",
			Run:   ls,
		},
		&cli.Command{
			Name:  "download",
			Usage: "<site-id> <path> [--out file]",
			Short: "download a file",
			Run:   download,
		},
		&cli.Command{
			Name:  "upload",
			Usage: "<site-id> <local-file> <remote-path>",
			Short: "upload a file, replacing any existing one",
			Run:   upload,
		},
		&cli.Command{
			Name:  "share",
			Usage: "<site-id> <path> [--type view|edit] [--scope organization|anonymous]",
			Short: "create a sharing link",
			Run:   share,
		},
	)
	return &cli.Program{
		Name:     "sharepoint",
		Short:    "SharePoint sites and files via Microsoft Graph",
		Commands: cmds,
	}
}

type site struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	WebURL               string    `json:"webUrl"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
}

// itemPath addresses a file or folder by path in the site's default drive.
// An empty path is the drive root. Commas in composite site IDs stay literal.
func itemPath(siteID, p string) string {
	base := "/sites/" + strings.ReplaceAll(url.PathEscape(siteID), "%2C", ",") + "/drive/root"
	p = strings.Trim(p, "/")
	if p == "" {
		return base
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return base + ":/" + strings.Join(segments, "/") + ":"
}

func sites(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("query"); err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	q := url.Values{"search": {strings.Join(a.Positional, " ")}}
	found, err := msgraph.List[site](ctx, c, "/sites", q, maxListItems)
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"id", "name", "url"}}
	for _, s := range found {
		res.Rows = append(res.Rows, []any{s.ID, s.DisplayName, s.WebURL})
	}
	return format.Write(env.Stdout, mode, res)
}

func ls(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("site-id"); err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	q := url.Values{"$select": {"id,name,size,webUrl,lastModifiedDateTime,folder"}}
	items, err := msgraph.List[driveItem](ctx, c, itemPath(a.Arg(0), a.Arg(1))+"/children", q, maxListItems)
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"name", "type", "size", "modified"}}
	for _, it := range items {
		kind, size := "file", any(it.Size)
		if it.Folder != nil {
			kind, size = "folder", fmt.Sprintf("%d items", it.Folder.ChildCount)
		}
		res.Rows = append(res.Rows, []any{it.Name, kind, size, it.LastModifiedDateTime.Local().Format("2006-01-02 15:04")})
	}
	return format.Write(env.Stdout, mode, res)
}

func download(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("site-id", "path"); err != nil {
		return err
	}
	out := a.StringOr("out", path.Base(a.Arg(1)))
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := c.Download(ctx, itemPath(a.Arg(0), a.Arg(1))+"/content", tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	env.Printf("Downloaded %s to %s (%d bytes)\n", a.Arg(1), out, n)
	return nil
}

func upload(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("site-id", "local-file", "remote-path"); err != nil {
		return err
	}
	// Graph's simple upload needs a Content-Length, so the file is sent
	// from memory.
	data, err := os.ReadFile(a.Arg(1))
	if err != nil {
		return cli.Usagef("cannot read %s: %v", a.Arg(1), err)
	}

	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	var item driveItem
	req := msgraph.Request{
		Method:      http.MethodPut,
		Path:        itemPath(a.Arg(0), a.Arg(2)) + "/content",
		Body:        bytes.NewReader(data),
		ContentType: "application/octet-stream",
	}
	if err := c.Do(ctx, req, &item); err != nil {
		return err
	}
	env.Printf("Uploaded %s (%d bytes)\n", item.Name, item.Size)
	if item.WebURL != "" {
		env.Printf("%s\n", item.WebURL)
	}
	return nil
}

func share(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("site-id", "path"); err != nil {
		return err
	}
	linkType := a.StringOr("type", "view")
	if linkType != "view" && linkType != "edit" {
		return cli.Usagef("--type must be view or edit, got %q", linkType)
	}
	scope := a.StringOr("scope", "organization")
	if scope != "organization" && scope != "anonymous" {
		return cli.Usagef("--scope must be organization or anonymous, got %q", scope)
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	var out struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	body := map[string]string{"type": linkType, "scope": scope}
	if err := c.Post(ctx, itemPath(a.Arg(0), a.Arg(1))+"/createLink", body, &out); err != nil {
		return err
	}
	env.Println(out.Link.WebURL)
	return nil
}
