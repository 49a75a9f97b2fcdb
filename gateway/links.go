package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/domain/services"
)

// linkView is one row of `links list`
type linkView struct {
	Platform     string `yaml:"platform"`
	PlatformUser string `yaml:"platform_user"`
	DisplayName  string `yaml:"display_name,omitempty"`
	CreatedAt    string `yaml:"created_at"`
	UpdatedAt    string `yaml:"updated_at"`
}

func newLinksCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect and remove platform links",
	}
	cmd.AddCommand(newLinksListCommand(opts), newLinksUnlinkCommand(opts))
	return cmd
}

func newLinksListCommand(opts *globalOptions) *cobra.Command {
	var (
		user   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the platforms linked to a user",
		Example: `  gateway links list --user 8f2c...
  gateway links list --user 8f2c... -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unsupported output format: %q", output)
			}
			ctx := cmd.Context()
			conn, err := connectDatabase(ctx, opts.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer conn.Close()

			views, err := listLinks(ctx, conn.Repositories(), user)
			if err != nil {
				return err
			}
			return printLinks(cmd.OutOrStdout(), views, output)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Canonical user token (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, yaml)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLinksUnlinkCommand(opts *globalOptions) *cobra.Command {
	var (
		user     string
		platform string
	)

	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Remove a user's links for one platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := entities.ParsePlatform(platform)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := slog.Default().With(slog.String("component", "links"))

			conn, err := connectDatabase(ctx, opts.cfg, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			repos := conn.Repositories()
			svc := services.NewLinkService(
				opts.cfg.AnchorPlatform(),
				repos.Links,
				repos.Metadata,
				services.NewMetadataWriter(repos.Metadata, log),
				nil,
				log,
			)

			res, err := svc.Unlink(ctx, user, p)
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("failed to remove %d %s link(s), see log for details", res.Failed, p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d %s link(s)\n", res.Matched, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Canonical user token (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform to unlink (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

// listLinks loads a user's links with their display names
func listLinks(ctx context.Context, repos *repositories.Repositories, user string) ([]linkView, error) {
	links, err := repos.Links.ListByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	views := make([]linkView, 0, len(links))
	for _, link := range links {
		view := linkView{
			Platform:     string(link.Platform),
			PlatformUser: link.PlatformUser,
			CreatedAt:    formatUnix(link.CreatedAt),
			UpdatedAt:    formatUnix(link.UpdatedAt),
		}
		meta, err := repos.Metadata.Get(ctx, link.Platform, link.PlatformUser, entities.MetadataDisplayName)
		switch {
		case err == nil:
			view.DisplayName = meta.Value
		case !errors.Is(err, repositories.ErrMetadataNotFound):
			return nil, fmt.Errorf("failed to load display name for %s: %w", link.Key(), err)
		}
		views = append(views, view)
	}
	return views, nil
}

func printLinks(w io.Writer, views []linkView, output string) error {
	if output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("failed to encode links: %w", err)
		}
		return enc.Close()
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "No links found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tPLATFORM USER\tDISPLAY NAME\tUPDATED")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Platform, v.PlatformUser, v.DisplayName, v.UpdatedAt)
	}
	return tw.Flush()
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
