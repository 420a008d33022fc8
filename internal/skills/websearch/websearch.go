// Package websearch is the websearch tool: web search and page extraction
// through a Tavily-compatible API, plus a keyless local extractor.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/restclient"
)

const (
	service = "Search"

	defaultMaxResults = 5
	// snippetLen caps result content in table mode.
	snippetLen = 160
)

// Program returns the websearch command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "websearch",
		Short: "search the web and extract page text (SEARCH_API_KEY or TAVILY_API_KEY)",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "<query> [--max N] [--depth basic|advanced] [--answer] [--format table|json|csv]",
				Short: "search the web",
				Run:   search,
			},
			{
				Name:  "extract",
				Usage: "<url>... [--local] [--max-chars N]",
				Short: "extract readable text from pages",
				Run:   extract,
			},
		},
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string         `json:"answer"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type extractRequest struct {
	URLs []string `json:"urls"`
}

type extractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

func apiKey(env *cli.Env) (string, error) {
	key := env.Config.Search.APIKey
	if key == "" {
		return "", cli.NotConfigured("Search API key", "set SEARCH_API_KEY or TAVILY_API_KEY, or use `websearch extract --local`")
	}
	return key, nil
}

func search(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("query"); err != nil {
		return err
	}
	max, err := a.Int("max", defaultMaxResults)
	if err != nil {
		return err
	}
	depth := a.StringOr("depth", "basic")
	if depth != "basic" && depth != "advanced" {
		return cli.Usagef("--depth must be basic or advanced, got %q", depth)
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	key, err := apiKey(env)
	if err != nil {
		return err
	}

	var out searchResponse
	resp, err := restclient.New(env, env.Config.Search.URL).R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(&searchRequest{
			Query:         strings.Join(a.Positional, " "),
			MaxResults:    max,
			SearchDepth:   depth,
			IncludeAnswer: a.Bool("answer"),
		}).
		SetResult(&out).
		Post("/search")
	if err := restclient.Check(service, resp, err); err != nil {
		return err
	}

	if out.Answer != "" && mode == format.Table {
		env.Printf("Answer: %s\n\n", out.Answer)
	}

	res := &format.Result{Columns: []string{"title", "url", "content"}}
	for _, r := range out.Results {
		content := r.Content
		if mode == format.Table {
			content = truncate(oneLine(content), snippetLen)
		}
		res.Rows = append(res.Rows, []any{r.Title, r.URL, content})
	}
	return format.Write(env.Stdout, mode, res)
}

func extract(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("url"); err != nil {
		return err
	}
	maxChars, err := a.Int("max-chars", 0)
	if err != nil {
		return err
	}

	if a.Bool("local") {
		return extractLocal(ctx, env, a.Positional, maxChars)
	}

	key, err := apiKey(env)
	if err != nil {
		return err
	}

	var out extractResponse
	resp, err := restclient.New(env, env.Config.Search.URL).R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(&extractRequest{URLs: a.Positional}).
		SetResult(&out).
		Post("/extract")
	if err := restclient.Check(service, resp, err); err != nil {
		return err
	}

	for _, r := range out.Results {
		printPage(env, "", r.URL, r.RawContent, maxChars)
	}
	for _, f := range out.FailedResults {
		fmt.Fprintf(env.Stderr, "failed: %s: %s\n", f.URL, f.Error)
	}
	if len(out.Results) == 0 {
		return &cli.APIError{Service: service, Message: "no page could be extracted"}
	}
	return nil
}

func printPage(env *cli.Env, title, url, text string, maxChars int) {
	if title != "" {
		env.Printf("# %s\n", title)
	}
	env.Printf("%s\n\n", url)
	if maxChars > 0 {
		text = truncate(text, maxChars)
	}
	env.Printf("%s\n\n", strings.TrimSpace(text))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
