package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	handler "github.com/utafrali/EcommerceGo/services/forum/internal/handler/http"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	page          int
	perPage       int
	forums        []int64
	customer      int64
	topic         int64
	searchIn      string
	from          string
	to            string
	origin        string
	direct        bool
	noHits        bool
	noFacets      bool
	noSuggestions bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search forum posts",
		Long: `Search forum posts through the configured index, or directly against
storage with --direct.

Examples:
  forumctl search shipping
  forumctl search "late delivery" --forum 1 --forum 2 --page 2
  forumctl search refund --search-in subject --no-facets
  forumctl search --customer 11 --from 2024-01-01 --to 2024-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd.OutOrStdout(), g, opts, term)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", 1, "Result page")
	cmd.Flags().IntVarP(&opts.perPage, "per-page", "n", 20, "Topics per page; 0 returns counts only")
	cmd.Flags().Int64SliceVar(&opts.forums, "forum", nil, "Restrict to forum ids (repeatable)")
	cmd.Flags().Int64Var(&opts.customer, "customer", 0, "Restrict to posts by a customer id")
	cmd.Flags().Int64Var(&opts.topic, "topic", 0, "Restrict to a topic id")
	cmd.Flags().StringVar(&opts.searchIn, "search-in", "", "Fields to match: all, subject, text")
	cmd.Flags().StringVar(&opts.from, "from", "", "Earliest post date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Latest post date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.origin, "origin", "", "Caller context tag, e.g. Boards/Search")
	cmd.Flags().BoolVar(&opts.direct, "direct", false, "Bypass the index and search storage")
	cmd.Flags().BoolVar(&opts.noHits, "no-hits", false, "Skip topic hits")
	cmd.Flags().BoolVar(&opts.noFacets, "no-facets", false, "Skip facets")
	cmd.Flags().BoolVar(&opts.noSuggestions, "no-suggestions", false, "Skip spelling suggestions")

	return cmd
}

// values encodes the options as search query parameters.
func (o searchOptions) values(term string) url.Values {
	v := url.Values{}
	if term != "" {
		v.Set("q", term)
	}
	v.Set("page", strconv.Itoa(o.page))
	v.Set("per_page", strconv.Itoa(o.perPage))
	for _, id := range o.forums {
		v.Add("forum_id", strconv.FormatInt(id, 10))
	}
	if o.customer > 0 {
		v.Set("customer_id", strconv.FormatInt(o.customer, 10))
	}
	if o.topic > 0 {
		v.Set("topic_id", strconv.FormatInt(o.topic, 10))
	}
	if o.searchIn != "" {
		v.Set("search_in", o.searchIn)
	}
	if o.from != "" {
		v.Set("from", o.from)
	}
	if o.to != "" {
		v.Set("to", o.to)
	}
	if o.origin != "" {
		v.Set("origin", o.origin)
	}
	if o.direct {
		v.Set("direct", "true")
	}
	if o.noHits {
		v.Set("hits", "false")
	}
	if o.noFacets {
		v.Set("facets", "false")
	}
	if o.noSuggestions {
		v.Set("suggestions", "false")
	}
	return v
}

func runSearch(ctx context.Context, w io.Writer, g *globalOptions, opts searchOptions, term string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp handler.SearchResponse
	notices, err := newClient(g).do(ctx, http.MethodGet, "/api/v1/forum/search", opts.values(term), nil, &resp)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if g.json {
		return printJSON(w, resp, notices)
	}
	printSearch(w, resp, notices)
	return nil
}

func printSearch(w io.Writer, resp handler.SearchResponse, notices []notice.Notice) {
	if resp.Term != "" {
		fmt.Fprintf(w, "%d posts match %q (source: %s)\n", resp.TotalCount, resp.Term, resp.Source)
	} else {
		fmt.Fprintf(w, "%d posts (source: %s)\n", resp.TotalCount, resp.Source)
	}

	if resp.Topics != nil {
		fmt.Fprintf(w, "Page %d of %d\n", resp.Topics.Page, resp.Topics.TotalPages)
		for _, t := range resp.Topics.Data {
			fmt.Fprintf(w, "  #%d  %s  (%d posts", t.ID, t.Subject, t.NumPosts)
			if t.FirstMatchedPostID > 0 {
				fmt.Fprintf(w, ", first match #%d", t.FirstMatchedPostID)
			}
			fmt.Fprintln(w, ")")
		}
	}

	if len(resp.Facets) > 0 {
		names := make([]string, 0, len(resp.Facets))
		for name := range resp.Facets {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "Facets:")
		for _, name := range names {
			group := resp.Facets[name]
			parts := make([]string, 0, len(group.Facets))
			for _, f := range group.Facets {
				parts = append(parts, fmt.Sprintf("%s=%d", f.Label, f.Count))
			}
			fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(parts, ", "))
		}
	}

	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(w, "Did you mean: %s\n", strings.Join(resp.Suggestions, ", "))
	}

	printNotices(w, notices)
}

func printNotices(w io.Writer, notices []notice.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
}

func printJSON(w io.Writer, data any, notices []notice.Notice) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Data    any             `json:"data"`
		Notices []notice.Notice `json:"notices,omitempty"`
	}{Data: data, Notices: notices})
}
