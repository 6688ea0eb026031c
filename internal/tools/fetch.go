package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

const (
	fetchTimeout   = 30 * time.Second
	fetchBodyLimit = 2 << 20 // 2 MiB
	fetchUserAgent = "kestrel/0.1"
)

// Fetch retrieves a web page and returns it as markdown.
type Fetch struct {
	Client *http.Client
}

func (t *Fetch) Name() string { return "fetch" }

func (t *Fetch) Description() string {
	return "Fetch a web page and return its content converted to markdown"
}

func (t *Fetch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "HTTP or HTTPS URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *Fetch) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return schema.Fail(fmt.Sprintf("unsupported url %q", url)), nil
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return schema.Fail(fmt.Sprintf("fetching %s: status %d", url, resp.StatusCode)), nil
	}

	body := io.LimitReader(resp.Body, fetchBodyLimit)
	contentType := resp.Header.Get("Content-Type")

	if !strings.Contains(contentType, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return schema.Fail(err.Error()), nil
		}
		return schema.Ok(string(raw)), nil
	}

	decoded, err := charset.NewReader(body, contentType)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	doc.Find("script, style, noscript").Remove()

	html, err := doc.Find("body").Html()
	if err != nil || html == "" {
		html, _ = doc.Html()
	}
	markdown, err := md.NewConverter("", true, nil).ConvertString(html)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		markdown = "# " + title + "\n\n" + markdown
	}
	return schema.Ok(strings.TrimSpace(markdown)), nil
}
