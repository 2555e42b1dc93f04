package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/spf13/cobra"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/library"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Import EPUB, text or Markdown files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			files := make([]library.File, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				files = append(files, library.File{Name: filepath.Base(path), Data: data})
			}

			report, err := a.library.ImportFiles(cmd.Context(), files)
			if err != nil {
				return err
			}
			printImportReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), report)
			if n := len(report.Failed); n > 0 {
				return fmt.Errorf("%d of %d files failed to import", n, len(files))
			}
			return nil
		},
	}
}

func printImportReport(out, errOut io.Writer, report *library.ImportReport) {
	for _, e := range report.Imported {
		fmt.Fprintf(out, "imported %s: %s (%d words)\n", e.ID, e.Title, e.TotalWords)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "skipped %s: already in library as %s\n", s.File, s.ID)
	}
	for _, f := range report.Failed {
		fmt.Fprintln(errOut, f.Message())
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the books in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			asTree, _ := cmd.Flags().GetBool("tree")
			entries := a.library.Entries()
			if asTree {
				fmt.Fprint(cmd.OutOrStdout(), libraryTree(entries))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCREATOR\tWORDS\tREAD")
			for _, e := range entries {
				idx := a.positions.Get(cmd.Context(), e.ID)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d%%\n", e.ID, e.Title, e.Creator, e.TotalWords,
					book.CompletionRate(idx, e.TotalWords))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("tree", false, "Group books by creator")
	return cmd
}

// libraryTree renders entries grouped by creator.
func libraryTree(entries []book.Entry) string {
	root := gotree.New(fmt.Sprintf("Library (%d books)", len(entries)))
	var names []string
	byCreator := make(map[string][]book.Entry)
	for _, e := range entries {
		name := e.Creator
		if name == "" {
			name = "Unknown"
		}
		if _, ok := byCreator[name]; !ok {
			names = append(names, name)
		}
		byCreator[name] = append(byCreator[name], e)
	}
	sort.Strings(names)
	for _, name := range names {
		node := root.Add(name)
		for _, e := range byCreator[name] {
			node.Add(fmt.Sprintf("%s [%s]", e.Title, e.ID))
		}
	}
	return root.Print()
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete books with their position and cover",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.library.DeleteBooks(cmd.Context(), args...)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d books\n", n, len(args))
			return err
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ID",
		Short: "Show a book's metadata and reading progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			e, err := a.library.Entry(args[0])
			if err != nil {
				return err
			}
			p, err := a.library.Book(ctx, e.ID)
			if err != nil {
				return err
			}
			idx := a.positions.Get(ctx, e.ID)
			wpm := a.settings.Load(ctx).WordsPerMinute

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			row := func(k, v string) {
				if v != "" {
					fmt.Fprintf(tw, "%s:\t%s\n", k, v)
				}
			}
			row("ID", e.ID)
			row("Title", e.Title)
			row("Creator", e.Creator)
			row("Language", e.Language)
			row("Publisher", e.Publisher)
			if !e.Published.IsZero() {
				row("Published", e.Published.Format(time.DateOnly))
			}
			row("Subjects", strings.Join(e.Subjects, ", "))
			row("Description", e.Description)
			row("Source", e.Source)
			row("Cover", strconv.FormatBool(e.HasCover))
			row("BlurHash", e.BlurHash)
			row("Words", strconv.Itoa(p.Len()))
			row("Paragraphs", strconv.Itoa(len(p.Paragraphs)))
			row("Position", fmt.Sprintf("%d (%d%%)", idx, book.CompletionRate(idx, p.Len())))
			row("Time left", fmt.Sprintf("%s at %d wpm", book.TimeToRead(idx, p.Len(), wpm).Round(time.Second), wpm))
			row("Added", e.AddedAt.Format(time.RFC3339))
			return tw.Flush()
		},
	}
}

func newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position ID [WORD_INDEX]",
		Short: "Show or set a book's reading position",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			e, err := a.library.Entry(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				idx, err := strconv.Atoi(args[1])
				if err != nil || idx < 0 || idx >= e.TotalWords {
					return fmt.Errorf("invalid word index %q (must be 0..%d)", args[1], e.TotalWords-1)
				}
				if err := a.positions.Set(ctx, e.ID, idx); err != nil {
					return err
				}
			}
			idx := a.positions.Get(ctx, e.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d (%d%%)\n", idx, e.TotalWords, book.CompletionRate(idx, e.TotalWords))
			return nil
		},
	}
}

func newCoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover ID",
		Short: "Export a book's cover image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			thumb, _ := cmd.Flags().GetInt("thumb")
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			if thumb < 0 {
				return fmt.Errorf("invalid --thumb %d (must be positive)", thumb)
			}

			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			data, contentType, err := a.library.Cover(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if thumb > 0 {
				err = library.WriteThumbnail(f, data, thumb)
				contentType = "image/jpeg"
			} else {
				_, err = f.Write(data)
			}
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to write cover: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", output, contentType)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Int("thumb", 0, "Write a JPEG thumbnail this many pixels wide instead of the original")
	return cmd
}
