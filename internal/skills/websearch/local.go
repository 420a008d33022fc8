package websearch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/restclient"
)

// browserUserAgent is sent by local extraction; some sites refuse Go's
// default agent.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// textSelectors are the block elements that carry readable text.
const textSelectors = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td"

// noiseSelectors are removed before text is collected.
const noiseSelectors = "script, style, noscript, nav, footer, header, aside, form, svg, iframe"

// extractLocal fetches each page directly and reduces it to text. A page
// that fails is reported and skipped; the command fails only when every
// page failed.
func extractLocal(ctx context.Context, env *cli.Env, urls []string, maxChars int) error {
	client := restclient.New(env, "").SetHeader("User-Agent", browserUserAgent).SetHeader("Accept", "text/html,application/xhtml+xml")

	ok := 0
	for _, u := range urls {
		resp, err := client.R().SetContext(ctx).Get(u)
		if err := restclient.Check("Fetch", resp, err); err != nil {
			fmt.Fprintf(env.Stderr, "failed: %s: %v\n", u, err)
			continue
		}

		title, text, err := htmlText(resp.Bytes())
		if err != nil {
			fmt.Fprintf(env.Stderr, "failed: %s: %v\n", u, err)
			continue
		}
		printPage(env, title, u, text, maxChars)
		ok++
	}

	if ok == 0 {
		return fmt.Errorf("no page could be extracted")
	}
	return nil
}

// htmlText returns the page title and its readable text, one block per
// paragraph.
func htmlText(page []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := oneLine(doc.Find("title").First().Text())
	doc.Find(noiseSelectors).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var blocks []string
	root.Find(textSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested matches (a p inside an li) are collected by the outer one.
		if s.ParentsFiltered(textSelectors).Length() > 0 {
			return
		}
		var line string
		if goquery.NodeName(s) == "pre" {
			line = strings.TrimSpace(s.Text())
		} else {
			line = oneLine(s.Text())
		}
		if line == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			line = "- " + line
		}
		blocks = append(blocks, line)
	})

	if len(blocks) == 0 {
		if body := oneLine(root.Text()); body != "" {
			blocks = append(blocks, body)
		}
	}
	return title, strings.Join(blocks, "\n\n"), nil
}
