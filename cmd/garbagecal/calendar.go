package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/notify"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the calendar for the stored address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return runRefresh(cmd.Context(), cmd.OutOrStdout(), a, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "refresh even when the cached calendar is fresh")
	return cmd
}

type refresher interface {
	Refresh(ctx context.Context, force bool) (domain.RefreshReport, error)
}

func runRefresh(ctx context.Context, w io.Writer, a *app, force bool) error {
	return refreshAndReport(ctx, w, a.refresher, force)
}

func refreshAndReport(ctx context.Context, w io.Writer, r refresher, force bool) error {
	report, err := r.Refresh(ctx, force)
	switch {
	case errors.Is(err, domain.ErrNoAddress):
		return errors.New("no address set, run 'garbagecal address <query>' first")
	case errors.Is(err, domain.ErrApartment):
		return errors.New("this address is an apartment block with a shared collection point; ask the building manager for the schedule")
	case err != nil:
		return err
	}

	if report.Skipped {
		fmt.Fprintln(w, "Calendar is up to date.")
		return nil
	}
	fmt.Fprintf(w, "Sector %s: %d collections", report.Sector.Code, report.Collections)
	if len(report.Added) > 0 || len(report.Removed) > 0 {
		fmt.Fprintf(w, " (+%d / -%d)", len(report.Added), len(report.Removed))
	}
	fmt.Fprintln(w)
	return nil
}

func newListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show upcoming collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if !a.collections.IsSet() {
				return errors.New("no calendar cached yet, run 'garbagecal refresh'")
			}

			now := a.clock.Now()
			r := newRenderer(cmd.OutOrStdout(), a.user.Sector().Type, now)
			updated, ok := a.collections.LastUpdated()
			r.header(a.collections.Sector(), updated, ok)

			cols := a.collections.Upcoming(now)
			if all {
				cols = a.collections.Collections()
			}
			r.collections(cols)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include past collections")
	return cmd
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			now := a.clock.Now()
			c, ok := a.collections.Next(now)
			if !ok {
				return errors.New("no upcoming collection known, run 'garbagecal refresh'")
			}
			newRenderer(cmd.OutOrStdout(), a.user.Sector().Type, now).collection(c)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored address, sector and calendar state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			addr, ok := a.user.Address()
			if ok {
				fmt.Fprintln(w, "Address:  ", addr.Formatted())
			} else {
				fmt.Fprintln(w, "Address:   not set")
			}
			sector := a.user.Sector()
			fmt.Fprintf(w, "Sector:    %s (%s)\n", sector, sector.Type)
			fmt.Fprintln(w, "Calendar: ", a.collections.State())
			if updated, ok := a.collections.LastUpdated(); ok {
				fmt.Fprintln(w, "Updated:  ", updated.Format("2006-01-02 15:04"), "("+notify.RelativeDay(updated, a.clock.Now())+")")
			}
			fmt.Fprintln(w, "Refresh:  ", refreshLabel(a.collections.NeedsRefresh(a.user.IsChanged())))
			fmt.Fprintln(w, "Prefs:    ", a.prefs.Path())
			fmt.Fprintln(w, "Cache:    ", a.cfg.CacheDir)
			return nil
		},
	}
}

func refreshLabel(needed bool) string {
	if needed {
		return "needed"
	}
	return "not needed"
}
