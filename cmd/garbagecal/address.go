package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/resolver"
	"github.com/spf13/cobra"
)

const maxSuggestions = 5

var errAddressNotSet = errors.New("address not set")

func newAddressCmd() *cobra.Command {
	var (
		pick    int
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "address <query>",
		Short: "Look up your home address and store it",
		Long: "Look up your home address and store it.\n\n" +
			"When the lookup matches several addresses they are listed; rerun with --pick to choose one.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			if err := setAddress(cmd.Context(), cmd.OutOrStdout(), a.resolver(), a.refresher.CachedStreets, query, pick); err != nil {
				return err
			}
			if !refresh {
				return nil
			}
			return runRefresh(cmd.Context(), cmd.OutOrStdout(), a, false)
		},
	}
	cmd.Flags().IntVar(&pick, "pick", 0, "choose the Nth candidate of an ambiguous lookup")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "fetch the calendar for the new address")
	return cmd
}

// addressResolver is the part of resolver.Resolver used here.
type addressResolver interface {
	Resolve(ctx context.Context, query string) domain.Resolution
	Commit(ctx context.Context, candidate domain.Address) error
}

var _ addressResolver = (*resolver.Resolver)(nil)

func setAddress(ctx context.Context, w io.Writer, r addressResolver, streets func() ([]domain.Street, bool), query string, pick int) error {
	res := r.Resolve(ctx, query)
	switch res.Outcome {
	case domain.Resolved:
		if res.Err != nil {
			return res.Err
		}
		addr, _ := res.Address()
		fmt.Fprintln(w, "Address set:", addr.Formatted())
		return nil

	case domain.Ambiguous:
		if pick >= 1 && pick <= len(res.Candidates) {
			addr := res.Candidates[pick-1]
			if err := r.Commit(ctx, addr); err != nil {
				return err
			}
			fmt.Fprintln(w, "Address set:", addr.Formatted())
			return nil
		}
		fmt.Fprintf(w, "%q matches %d addresses:\n", query, len(res.Candidates))
		printCandidates(w, res.Candidates)
		if pick != 0 {
			return fmt.Errorf("%w: --pick must be between 1 and %d", errAddressNotSet, len(res.Candidates))
		}
		return fmt.Errorf("%w: rerun with --pick N", errAddressNotSet)

	case domain.NotFound:
		fmt.Fprintf(w, "No address found for %q.\n", query)
		if cached, ok := streets(); ok {
			if suggestions := resolver.Suggest(cached, query, maxSuggestions); len(suggestions) > 0 {
				fmt.Fprintln(w, "Did you mean:")
				printCandidates(w, suggestions)
			}
		}
		return errAddressNotSet

	default:
		return fmt.Errorf("address lookup failed: %w", res.Err)
	}
}

func printCandidates(w io.Writer, addrs []domain.Address) {
	for i, a := range addrs {
		fmt.Fprintf(w, "  %d. %s\n", i+1, a.Formatted())
	}
}
