package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	handler "github.com/utafrali/EcommerceGo/services/forum/internal/handler/http"
)

func newIndexCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Add or remove single posts in the forum index",
	}
	cmd.AddCommand(newIndexPostCmd(g), newIndexDeleteCmd(g))
	return cmd
}

func newIndexPostCmd(g *globalOptions) *cobra.Command {
	var (
		req       handler.IndexPostRequest
		createdAt string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Index or replace a post",
		Example: `  forumctl index post --id 42 --topic 7 --forum 1 --customer 11 \
    --subject "Shipping delay" --text "My order has not shipped yet"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if createdAt != "" {
				t, err := time.Parse(time.RFC3339, createdAt)
				if err != nil {
					return fmt.Errorf("--created-at must be an RFC 3339 timestamp: %w", err)
				}
				req.CreatedAt = &t
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			var out map[string]any
			if _, err := newClient(g).do(ctx, http.MethodPost, "/api/v1/forum/index", nil, req, &out); err != nil {
				return fmt.Errorf("index post %d: %w", req.ID, err)
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), out, nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "post %d indexed\n", req.ID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.ID, "id", 0, "Post id")
	cmd.Flags().Int64Var(&req.TopicID, "topic", 0, "Topic id")
	cmd.Flags().Int64Var(&req.ForumID, "forum", 0, "Forum id")
	cmd.Flags().Int64Var(&req.CustomerID, "customer", 0, "Author customer id")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Post subject")
	cmd.Flags().StringVar(&req.Text, "text", "", "Post text")
	cmd.Flags().StringVar(&createdAt, "created-at", "", "Creation time (RFC 3339); defaults to now")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func newIndexDeleteCmd(g *globalOptions) *cobra.Command {
	var topicID int64

	cmd := &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Remove a post from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("post id must be a positive integer, got %q", args[0])
			}

			var query url.Values
			if topicID > 0 {
				query = url.Values{"topic_id": {strconv.FormatInt(topicID, 10)}}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			var out map[string]any
			path := "/api/v1/forum/index/" + strconv.FormatInt(id, 10)
			if _, err := newClient(g).do(ctx, http.MethodDelete, path, query, nil, &out); err != nil {
				return fmt.Errorf("delete post %d: %w", id, err)
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), out, nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "post %d deleted\n", id)
			return nil
		},
	}

	cmd.Flags().Int64Var(&topicID, "topic", 0, "Topic id, lets the service drop the cached topic")

	return cmd
}

func newReindexCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the forum index from storage",
		Long: `Rebuild the forum index from primary storage. The service runs the
rebuild in the background; only one reindex runs at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			var out map[string]any
			if _, err := newClient(g).do(ctx, http.MethodPost, "/api/v1/forum/reindex", nil, nil, &out); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), out, nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reindex started")
			return nil
		},
	}
}
