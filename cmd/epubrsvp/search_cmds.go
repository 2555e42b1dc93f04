package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubrsvp/internal/settings"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search book paragraphs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, _ := cmd.Flags().GetString("book")
			limit, _ := cmd.Flags().GetInt("limit")
			jump, _ := cmd.Flags().GetBool("jump")
			if limit < 0 {
				return fmt.Errorf("invalid --limit %d (must be positive)", limit)
			}

			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if bookID != "" {
				if _, err := a.library.Entry(bookID); err != nil {
					return err
				}
			}
			if err := a.ensureIndexed(ctx); err != nil {
				return err
			}

			hits, err := a.index.Search(ctx, bookID, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, h := range hits {
				text := h.Fragment
				if text == "" {
					text = h.Text
				}
				fmt.Fprintf(out, "%s @%d (paragraph %d): %s\n", h.BookID, h.WordIndex, h.Paragraph, text)
			}

			if jump {
				h := hits[0]
				if err := a.positions.Set(ctx, h.BookID, h.WordIndex); err != nil {
					return err
				}
				fmt.Fprintf(out, "position of %s set to %d\n", h.BookID, h.WordIndex)
			}
			return nil
		},
	}
	cmd.Flags().String("book", "", "Only search this book")
	cmd.Flags().Int("limit", 10, "Maximum number of matches")
	cmd.Flags().Bool("jump", false, "Set the reading position to the best match")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings [KEY [VALUE]]",
		Short: "Show or change reader settings",
		Long: `Without arguments, settings prints every reader setting. With KEY it prints
one setting, and with KEY and VALUE it validates and stores a new value.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			st := a.settings.Load(ctx)
			if len(args) == 2 {
				if st, err = a.settings.Set(ctx, args[0], args[1]); err != nil {
					return err
				}
			}

			values, err := settingValues(st)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, key := range settings.Keys() {
					if strings.EqualFold(key, args[0]) {
						fmt.Fprintln(out, values[key])
						return nil
					}
				}
				return fmt.Errorf("%w: %q", settings.ErrUnknownKey, args[0])
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, key := range settings.Keys() {
				fmt.Fprintf(tw, "%s\t%s\n", key, values[key])
			}
			return tw.Flush()
		},
	}
}

// settingValues renders each setting keyed by its name.
func settingValues(st settings.Settings) (map[string]string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
		} else {
			out[k] = string(v)
		}
	}
	return out, nil
}
