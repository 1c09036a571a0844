package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"raceview/internal/blob"
	"raceview/internal/core"
	"raceview/internal/render"
	"raceview/pkg/domain"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var (
		query, sortField, order, out, theme, lang string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Load the dataset once and write the HTML page",
		Long: `render loads the configured dataset and writes a static HTML page for the
given search and sort. On a load failure the error page is still written and the
command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := core.ParseViewState(url.Values{"q": {query}, "sort": {sortField}, "order": {order}})
			if err != nil {
				return err
			}
			prefs := domain.Preferences{Theme: domain.Theme(theme), Language: domain.Language(lang)}.Normalize()

			a, err := newApp(cmd.Context(), opts.cfg, opts.logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			_, loadErr := a.service.Reload(cmd.Context())
			var buf bytes.Buffer
			view := a.service.NewController(state, nil).View()
			if err := a.renderer.RenderPage(&buf, render.Page{View: view, Prefs: prefs, Static: true, Query: query}); err != nil {
				return err
			}
			if out == "" || out == "-" {
				if _, err := buf.WriteTo(cmd.OutOrStdout()); err != nil {
					return err
				}
			} else if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			if loadErr != nil {
				return fmt.Errorf("load dataset: %w", loadErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "q", "", "search text")
	cmd.Flags().StringVar(&sortField, "sort", "", "sort field")
	cmd.Flags().StringVar(&order, "order", "asc", "sort order (asc or desc)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().StringVar(&theme, "theme", string(domain.DefaultTheme), "page theme (light or dark)")
	cmd.Flags().StringVar(&lang, "lang", string(domain.DefaultLanguage), "page language (en or fr)")
	return cmd
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var (
		key       string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Validate a JSON dataset and store it in the blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ds, err := domain.DecodeDataset(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if key == "" {
				key = opts.cfg.Source.Key
			}
			store, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			info, err := store.Put(cmd.Context(), key, bytes.NewReader(data), blob.PutOptions{
				ContentType: "application/json",
				Metadata: map[string]string{
					"records": strconv.Itoa(ds.Len()),
					"origin":  filepath.Base(args[0]),
				},
				Overwrite: overwrite,
			})
			if errors.Is(err, blob.ErrExists) {
				return fmt.Errorf("%s already exists; pass --overwrite to replace it", key)
			}
			if err != nil {
				return err
			}
			opts.logger.Sugar().Infow("dataset published", "key", info.Key, "records", ds.Len(), "driver", store.Driver())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d records to %s (%s)\n", ds.Len(), info.Key, info.ETag)
			return err
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "blob key (default source.key)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "replace an existing dataset")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources [prefix]",
		Short: "List datasets and exports in the blob store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			store, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			infos, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, info := range infos {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
