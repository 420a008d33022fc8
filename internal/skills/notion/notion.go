// Package notion is the Notion tool: search, read and write pages and
// databases shared with an internal integration.
package notion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

const (
	defaultLimit = 20
	maxPageSize  = 100
)

// Program returns the notion command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "notion",
		Short: "Notion pages and databases",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "<query> [--filter page|database] [--limit N] [--format table|json|csv]",
				Short: "search pages and databases by title",
				Run:   search,
			},
			{
				Name:  "get",
				Usage: "<page-id>",
				Short: "print a page's properties and text",
				Run:   get,
			},
			{
				Name:  "query",
				Usage: "<database-id> [--limit N] [--format table|json|csv]",
				Short: "list rows of a database",
				Run:   query,
			},
			{
				Name:       "create",
				Usage:      "<database-id> --title t [--prop Name=Value]*",
				Short:      "add a row to a database",
				Repeatable: []string{"prop"},
				Run:        create,
			},
			{
				Name:  "append",
				Usage: "<page-id> <text>",
				Short: "append a paragraph to a page",
				Run:   appendText,
			},
		},
	}
}

func client(env *cli.Env) (*notionapi.Client, error) {
	tok := env.Config.Notion.Token
	if tok == "" {
		return nil, cli.NotConfigured("Notion API key",
			"create an integration at https://www.notion.so/my-integrations and set NOTION_API_KEY")
	}
	return notionapi.NewClient(notionapi.Token(tok), notionapi.WithHTTPClient(env.HTTP())), nil
}

// apiError converts Notion error bodies to the shared error form.
func apiError(err error) error {
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		return &cli.APIError{Service: "Notion", Status: nerr.Status, Message: nerr.Message}
	}
	return err
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

func pageTitle(p *notionapi.Page) string {
	for _, prop := range p.Properties {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			return plainText(t.Title)
		}
	}
	return ""
}

func search(ctx context.Context, env *cli.Env, a *args.Args) error {
	limit, err := a.Int("limit", defaultLimit)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	req := &notionapi.SearchRequest{
		Query:    strings.Join(a.Positional, " "),
		PageSize: min(limit, maxPageSize),
	}
	if f, ok := a.String("filter"); ok {
		if f != "page" && f != "database" {
			return cli.Usagef("--filter must be page or database, got %q", f)
		}
		req.Filter = notionapi.SearchFilter{Property: "object", Value: f}
	}
	c, err := client(env)
	if err != nil {
		return err
	}

	resp, err := c.Search.Do(ctx, req)
	if err != nil {
		return apiError(err)
	}

	res := &format.Result{Columns: []string{"id", "type", "title", "edited", "url"}}
	for _, obj := range resp.Results {
		switch o := obj.(type) {
		case *notionapi.Page:
			res.Rows = append(res.Rows, []any{string(o.ID), "page", pageTitle(o), o.LastEditedTime.Local().Format("2006-01-02 15:04"), o.URL})
		case *notionapi.Database:
			res.Rows = append(res.Rows, []any{string(o.ID), "database", plainText(o.Title), o.LastEditedTime.Local().Format("2006-01-02 15:04"), o.URL})
		}
	}
	return format.Write(env.Stdout, mode, res)
}

func get(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("page-id"); err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}
	id := a.Arg(0)

	page, err := c.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return apiError(err)
	}
	env.Printf("# %s\n\n", pageTitle(page))
	env.Printf("ID:      %s\n", page.ID)
	env.Printf("URL:     %s\n", page.URL)
	env.Printf("Edited:  %s\n", page.LastEditedTime.Local().Format("2006-01-02 15:04"))

	names := make([]string, 0, len(page.Properties))
	for name, prop := range page.Properties {
		if _, ok := prop.(*notionapi.TitleProperty); !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		env.Printf("%s: %s\n", name, propertyText(page.Properties[name]))
	}

	children, err := c.Block.GetChildren(ctx, notionapi.BlockID(id), &notionapi.Pagination{PageSize: maxPageSize})
	if err != nil {
		return apiError(err)
	}
	var lines []string
	for _, b := range children.Results {
		if line, ok := blockText(b); ok {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		env.Printf("\n%s\n", strings.Join(lines, "\n"))
	}
	return nil
}

// blockText renders the text-bearing block types. Others are skipped.
func blockText(b notionapi.Block) (string, bool) {
	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		return plainText(v.Paragraph.RichText), true
	case *notionapi.Heading1Block:
		return "# " + plainText(v.Heading1.RichText), true
	case *notionapi.Heading2Block:
		return "## " + plainText(v.Heading2.RichText), true
	case *notionapi.Heading3Block:
		return "### " + plainText(v.Heading3.RichText), true
	case *notionapi.BulletedListItemBlock:
		return "- " + plainText(v.BulletedListItem.RichText), true
	case *notionapi.NumberedListItemBlock:
		return "1. " + plainText(v.NumberedListItem.RichText), true
	case *notionapi.ToDoBlock:
		box := "[ ]"
		if v.ToDo.Checked {
			box = "[x]"
		}
		return box + " " + plainText(v.ToDo.RichText), true
	}
	return "", false
}

// propertyText renders a property value as one line.
func propertyText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(v.MultiSelect))
		for _, o := range v.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.CheckboxProperty:
		return strconv.FormatBool(v.Checkbox)
	case *notionapi.URLProperty:
		return v.URL
	case *notionapi.EmailProperty:
		return v.Email
	case *notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case *notionapi.DateProperty:
		if v.Date == nil || v.Date.Start == nil {
			return ""
		}
		s := formatDate(v.Date.Start)
		if v.Date.End != nil {
			s += " → " + formatDate(v.Date.End)
		}
		return s
	case *notionapi.CreatedTimeProperty:
		return v.CreatedTime.Local().Format("2006-01-02 15:04")
	case *notionapi.LastEditedTimeProperty:
		return v.LastEditedTime.Local().Format("2006-01-02 15:04")
	case nil:
		return ""
	}
	return fmt.Sprintf("(%s)", p.GetType())
}

func formatDate(d *notionapi.Date) string {
	t := time.Time(*d)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Local().Format("2006-01-02 15:04")
}

func query(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("database-id"); err != nil {
		return err
	}
	limit, err := a.Int("limit", defaultLimit)
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

	var pages []notionapi.Page
	var cursor notionapi.Cursor
	for len(pages) < limit {
		resp, err := c.Database.Query(ctx, notionapi.DatabaseID(a.Arg(0)), &notionapi.DatabaseQueryRequest{
			StartCursor: cursor,
			PageSize:    min(limit-len(pages), maxPageSize),
		})
		if err != nil {
			return apiError(err)
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	if len(pages) > limit {
		pages = pages[:limit]
	}
	return format.Write(env.Stdout, mode, pageRows(pages))
}

// pageRows lays out database rows with the title column first and the
// remaining properties sorted by name.
func pageRows(pages []notionapi.Page) *format.Result {
	var title string
	seen := map[string]bool{}
	var names []string
	for _, p := range pages {
		for name, prop := range p.Properties {
			if _, ok := prop.(*notionapi.TitleProperty); ok {
				title = name
				continue
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	if title != "" {
		names = append([]string{title}, names...)
	}

	res := &format.Result{Columns: append([]string{"id"}, names...)}
	for _, p := range pages {
		row := []any{string(p.ID)}
		for _, name := range names {
			row = append(row, propertyText(p.Properties[name]))
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func create(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("database-id"); err != nil {
		return err
	}
	if err := a.Require("title"); err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}
	dbID := notionapi.DatabaseID(a.Arg(0))

	db, err := c.Database.Get(ctx, dbID)
	if err != nil {
		return apiError(err)
	}
	title, _ := a.String("title")
	props, err := buildProperties(db.Properties, title, a.Values("prop"))
	if err != nil {
		return err
	}

	page, err := c.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: dbID},
		Properties: props,
	})
	if err != nil {
		return apiError(err)
	}
	env.Printf("Created %s\n", page.ID)
	if page.URL != "" {
		env.Printf("%s\n", page.URL)
	}
	return nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// buildProperties converts --prop Name=Value pairs using the database
// schema to pick each property's type.
func buildProperties(schema notionapi.PropertyConfigs, title string, pairs []string) (notionapi.Properties, error) {
	props := notionapi.Properties{}
	for name, pc := range schema {
		if string(pc.GetType()) == "title" {
			props[name] = &notionapi.TitleProperty{Title: richText(title)}
		}
	}
	if len(props) == 0 {
		return nil, fmt.Errorf("database has no title property")
	}

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, cli.Usagef("--prop must be Name=Value, got %q", pair)
		}
		pc, ok := schema[name]
		if !ok {
			return nil, cli.Usagef("database has no property %q", name)
		}
		prop, err := propertyValue(string(pc.GetType()), value)
		if err != nil {
			return nil, cli.Usagef("--prop %s: %v", name, err)
		}
		props[name] = prop
	}
	return props, nil
}

func propertyValue(kind, value string) (notionapi.Property, error) {
	switch kind {
	case "title":
		return &notionapi.TitleProperty{Title: richText(value)}, nil
	case "rich_text":
		return &notionapi.RichTextProperty{RichText: richText(value)}, nil
	case "number":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", value)
		}
		return &notionapi.NumberProperty{Number: f}, nil
	case "select":
		return &notionapi.SelectProperty{Select: notionapi.Option{Name: value}}, nil
	case "multi_select":
		var opts []notionapi.Option
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				opts = append(opts, notionapi.Option{Name: v})
			}
		}
		return &notionapi.MultiSelectProperty{MultiSelect: opts}, nil
	case "checkbox":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", value)
		}
		return &notionapi.CheckboxProperty{Checkbox: b}, nil
	case "url":
		return &notionapi.URLProperty{URL: value}, nil
	case "email":
		return &notionapi.EmailProperty{Email: value}, nil
	case "phone_number":
		return &notionapi.PhoneNumberProperty{PhoneNumber: value}, nil
	case "date":
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, value); err != nil {
				return nil, fmt.Errorf("date must be YYYY-MM-DD or RFC 3339, got %q", value)
			}
		}
		d := notionapi.Date(t)
		return &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}, nil
	}
	return nil, fmt.Errorf("unsupported property type %s", kind)
}

func appendText(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("page-id", "text"); err != nil {
		return err
	}
	c, err := client(env)
	if err != nil {
		return err
	}

	text := strings.Join(a.Positional[1:], " ")
	_, err = c.Block.AppendChildren(ctx, notionapi.BlockID(a.Arg(0)), &notionapi.AppendBlockChildrenRequest{
		Children: []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
				Paragraph:  notionapi.Paragraph{RichText: richText(text)},
			},
		},
	})
	if err != nil {
		return apiError(err)
	}
	env.Printf("Appended to %s\n", a.Arg(0))
	return nil
}
