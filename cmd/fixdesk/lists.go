package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fixdesk/fixdesk/internal/service/directory"
)

func runList(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "list")
	kind := fs.String("kind", "", "List kind: error, userByRoom, deviceByRoom or deviceByUser")
	label := fs.String("label", "", "Value of the list's filter field (device, department or user)")
	query := fs.String("q", "", "Only show items containing this text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *kind == "" || *label == "" {
		return fmt.Errorf("%w: --kind and --label are required", errUsage)
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		items, err := c.Directory.List(ctx, directory.Kind(*kind), *label)
		if err != nil {
			return err
		}
		return printItems(cmdCtx, directory.Search(items, *query))
	})
}

func printItems(cmdCtx *commandContext, items []directory.Item) error {
	if len(items) == 0 {
		return writeln(cmdCtx.Stdout, "(no items)")
	}
	tw := tabwriter.NewWriter(cmdCtx.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tTITLE\tSUBTITLE"); err != nil {
		return fmt.Errorf("write list header: %w", err)
	}
	for _, it := range items {
		// Subtitles may span lines; keep one row per item.
		sub := strings.ReplaceAll(it.Subtitle, "\n", " · ")
		if err := writef(tw, "%s\t%s\t%s\n", it.ID, it.Title, sub); err != nil {
			return fmt.Errorf("write list item: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush list: %w", err)
	}
	return writef(cmdCtx.Stdout, "%d item(s)\n", len(items))
}

func runSummary(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "summary")
	label := fs.String("label", "", "Label to count items for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *label == "" {
		return fmt.Errorf("%w: --label is required", errUsage)
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		counts, err := c.Directory.Summary(ctx, *label)
		if err != nil {
			return err
		}
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)

		tw := tabwriter.NewWriter(cmdCtx.Stdout, 0, 4, 2, ' ', 0)
		if err := writeln(tw, "KIND\tCOUNT"); err != nil {
			return fmt.Errorf("write summary header: %w", err)
		}
		for _, k := range kinds {
			if err := writef(tw, "%s\t%d\n", k, counts[directory.Kind(k)]); err != nil {
				return fmt.Errorf("write summary row: %w", err)
			}
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("flush summary: %w", err)
		}
		return nil
	})
}
