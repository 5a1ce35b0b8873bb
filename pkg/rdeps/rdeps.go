// Package rdeps lists the reverse dependencies of a crate through the
// registry web API and clones each of them.
package rdeps

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/crateclone/crateclone/pkg/cloner"
	"github.com/crateclone/crateclone/pkg/httputil"
	"github.com/crateclone/crateclone/pkg/logging"
	"github.com/crateclone/crateclone/pkg/resolver"
	"github.com/crateclone/crateclone/pkg/source"
)

// DefaultAPI is the web API root of crates.io.
const DefaultAPI = "https://crates.io"

const pageSize = 100

// ErrUnexpectedStatus is returned when the API answers a page with anything
// but 200.
var ErrUnexpectedStatus = httputil.ErrUnexpectedStatus

// Dependent is one crate that depends on the crawled crate. Version is the
// dependent's version the API listed, not necessarily its latest.
type Dependent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type reverseDependencies struct {
	Versions []struct {
		Crate string `json:"crate"`
		Num   string `json:"num"`
	} `json:"versions"`
}

// Client reads reverse dependencies from a registry web API.
type Client struct {
	HTTP *httputil.Client
	// BaseURL is the API root, e.g. https://crates.io.
	BaseURL string
}

func NewClient(hc *httputil.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPI
	}
	return &Client{HTTP: hc, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Dependents pages through the listing from page 1 until a page comes back
// empty. Any failed page fails the whole listing.
func (c *Client) Dependents(ctx context.Context, name string) ([]Dependent, error) {
	logger := logging.FromContext(ctx)

	var out []Dependent
	for page := 1; ; page++ {
		var resp reverseDependencies
		if err := c.HTTP.GetJSON(ctx, c.pageURL(name, page), &resp); err != nil {
			return nil, fmt.Errorf("listing reverse dependencies of %s (page %d): %w", name, page, err)
		}
		logger.Debug("fetched reverse dependencies", "crate", name, "page", page, "count", len(resp.Versions))
		if len(resp.Versions) == 0 {
			return out, nil
		}
		for _, v := range resp.Versions {
			out = append(out, Dependent{Name: v.Crate, Version: v.Num})
		}
	}
}

func (c *Client) pageURL(name string, page int) string {
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(pageSize))
	q.Set("page", fmt.Sprint(page))
	return fmt.Sprintf("%s/api/v1/crates/%s/reverse_dependencies?%s", c.BaseURL, url.PathEscape(name), q.Encode())
}

// Cloner is what Crawler needs from cloner.Cloner.
type Cloner interface {
	Clone(ctx context.Context, q resolver.Query, loc source.Location, prefix string) (*cloner.Result, error)
}

// Crawler clones every reverse dependency of a crate.
type Crawler struct {
	Client *Client
	Cloner Cloner
}

// Failure is a dependent that could not be cloned.
type Failure struct {
	Name string
	Err  error
}

// Report is the outcome of CloneAll.
type Report struct {
	Total    int
	Cloned   []*cloner.Result
	Failures []Failure
}

func (r Report) String() string {
	return fmt.Sprintf("cloned %d of %d reverse dependencies", len(r.Cloned), r.Total)
}

// Crawl returns the names of every reverse dependency of name, in API order.
func (c *Crawler) Crawl(ctx context.Context, name string) ([]string, error) {
	deps, err := c.Client.Dependents(ctx, name)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(deps))
	for _, d := range deps {
		names = append(names, d.Name)
	}
	return names, nil
}

// CloneAll crawls name and clones each dependent at loc, one after another.
// With a prefix each dependent goes to <prefix>/<dependent>. vers applies to
// every dependent. A failed dependent is logged and recorded in the report;
// only a failed crawl is returned as an error.
func (c *Crawler) CloneAll(ctx context.Context, name string, loc source.Location, prefix, vers string) (Report, error) {
	logger := logging.FromContext(ctx)

	names, err := c.Crawl(ctx, name)
	if err != nil {
		return Report{}, err
	}

	report := Report{Total: len(names)}
	logger.Infof("crate %s has %d reverse dependencies. Cloning them all.", name, len(names))

	for _, dep := range names {
		var depPrefix string
		if prefix != "" {
			depPrefix = filepath.Join(prefix, dep)
		}

		res, err := c.Cloner.Clone(ctx, resolver.Query{Name: dep, Version: vers}, loc, depPrefix)
		if err != nil {
			logger.Errorf("cloning %s: %v", dep, err)
			report.Failures = append(report.Failures, Failure{Name: dep, Err: err})
			continue
		}
		logger.Debug("cloned", "crate", dep, "into", res.Destination)
		report.Cloned = append(report.Cloned, res)
	}

	return report, nil
}
