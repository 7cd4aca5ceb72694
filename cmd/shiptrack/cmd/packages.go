package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shiptrack/internal/storage"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <tracking-number>...",
		Short: "Save tracking numbers for later",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer a.close()

			var add func(number string) error
			if a.serverURL != "" {
				client, err := a.client(ctx)
				if err != nil {
					a.out.PrintError(err)
					return err
				}
				add = func(number string) error { return client.AddPackage(ctx, number) }
			} else {
				if err := a.openStores(); err != nil {
					a.out.PrintError(err)
					return err
				}
				add = func(number string) error { return storage.AddTrackingNumber(ctx, a.stores.Packages, number) }
			}

			for _, number := range args {
				number = strings.TrimSpace(number)
				if number == "" {
					continue
				}
				if err := add(number); err != nil {
					a.out.PrintError(err)
					return err
				}
				a.out.PrintSuccess(fmt.Sprintf("Added %s", number))
			}
			return nil
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <tracking-number>...",
		Aliases: []string{"rm"},
		Short:   "Forget saved tracking numbers",
		Long:    "Remove every saved occurrence of each tracking number.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer a.close()

			var remove func(number string) (int, error)
			if a.serverURL != "" {
				client, err := a.client(ctx)
				if err != nil {
					a.out.PrintError(err)
					return err
				}
				remove = func(number string) (int, error) { return client.RemovePackage(ctx, number) }
			} else {
				if err := a.openStores(); err != nil {
					a.out.PrintError(err)
					return err
				}
				remove = func(number string) (int, error) {
					return storage.RemoveTrackingNumber(ctx, a.stores.Packages, number)
				}
			}

			for _, number := range args {
				removed, err := remove(number)
				if err != nil {
					a.out.PrintError(err)
					return err
				}
				if removed == 0 {
					a.out.PrintInfo(fmt.Sprintf("%s was not saved", number))
					continue
				}
				a.out.PrintSuccess(fmt.Sprintf("Removed %s", number))
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show saved tracking numbers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer a.close()

			var numbers []string
			if a.serverURL != "" {
				client, err := a.client(ctx)
				if err != nil {
					a.out.PrintError(err)
					return err
				}
				if numbers, err = client.ListPackages(ctx); err != nil {
					a.out.PrintError(err)
					return err
				}
			} else {
				if err := a.openStores(); err != nil {
					a.out.PrintError(err)
					return err
				}
				var err error
				if numbers, err = a.stores.Packages.Load(ctx); err != nil {
					a.out.PrintError(err)
					return err
				}
			}

			return a.out.PrintTrackingNumbers(numbers)
		},
	}
}
