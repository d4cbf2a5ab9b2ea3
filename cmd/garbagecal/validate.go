package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/garbagecal/internal/adapter/calendar"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a calendar document parses",
		Long: "Check that a calendar document parses.\n\n" +
			"Reports how many collections were read and which rows were skipped. Use - for stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return validate(cmd.OutOrStdout(), in)
		},
	}
}

func validate(w io.Writer, r io.Reader) error {
	doc, cols, stats, err := calendar.Parse(r)
	if err != nil {
		return err
	}
	domain.NewHolidayCalendar().Annotate(cols)

	sector := domain.ParseSector(doc.Sector)
	fmt.Fprintf(w, "sector:        %s (%s)\n", sector, sector.Type)
	fmt.Fprintf(w, "rows:          %d\n", stats.Rows)
	fmt.Fprintf(w, "collections:   %d\n", len(cols))
	fmt.Fprintf(w, "bad dates:     %d\n", stats.BadDates)
	fmt.Fprintf(w, "unknown types: %d\n", stats.UnknownTypes)
	fmt.Fprintf(w, "empty rows:    %d\n", stats.EmptyRows)
	if len(cols) > 0 {
		fmt.Fprintf(w, "range:         %s .. %s\n",
			cols[0].Date.Format("2006-01-02"), cols[len(cols)-1].Date.Format("2006-01-02"))
	}
	for _, c := range cols {
		if c.Holiday != "" {
			fmt.Fprintf(w, "holiday:       %s %s\n", c.Date.Format("2006-01-02"), c.Holiday)
		}
	}

	if len(cols) == 0 {
		return errors.New("document contains no usable collections")
	}
	return nil
}
