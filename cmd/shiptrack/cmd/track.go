package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shiptrack/internal/carriers"
	"shiptrack/internal/cli"
)

type packageTracker interface {
	TrackPackage(ctx context.Context, trackingNumber string) (*carriers.Package, error)
}

func newTrackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "track [tracking-number...]",
		Short: "Track packages (the default command)",
		Long: `Track one or more packages. With no arguments every saved tracking
number is tracked in order. A failure on one number is reported and the
rest are still tracked.`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runTrack,
	}
}

func (a *app) runTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defer a.close()

	var tracker packageTracker
	var numbers []string

	if a.serverURL != "" {
		client, err := a.client(ctx)
		if err != nil {
			a.out.PrintError(err)
			return err
		}
		tracker = client
		numbers = args
		if len(numbers) == 0 {
			if numbers, err = client.ListPackages(ctx); err != nil {
				a.out.PrintError(err)
				return err
			}
		}
	} else {
		if err := a.openTracker(cli.AcquireHook(a.cfg.Output.NoColor, a.cfg.Output.Quiet)); err != nil {
			a.out.PrintError(err)
			return err
		}
		tracker = a.tracker
		numbers = args
		if len(numbers) == 0 {
			var err error
			if numbers, err = a.stores.Packages.Load(ctx); err != nil {
				a.out.PrintError(err)
				return err
			}
		}
	}

	if len(numbers) == 0 {
		a.out.PrintInfo("No saved tracking numbers. Add one with: shiptrack add <tracking-number>")
		return nil
	}

	failed := trackAll(ctx, tracker, numbers, a.out)
	if failed > 0 {
		return fmt.Errorf("%d of %d packages could not be tracked", failed, len(numbers))
	}
	return nil
}

// trackAll tracks numbers one at a time and reports how many failed. It
// stops early only when ctx is cancelled.
func trackAll(ctx context.Context, tracker packageTracker, numbers []string, out *cli.OutputFormatter) int {
	failed := 0
	for _, number := range numbers {
		if ctx.Err() != nil {
			failed++
			continue
		}

		pkg, err := tracker.TrackPackage(ctx, number)
		if err != nil {
			out.PrintError(err)
			failed++
			continue
		}
		if err := out.PrintPackage(pkg); err != nil {
			out.PrintError(err)
			failed++
		}
	}
	return failed
}
