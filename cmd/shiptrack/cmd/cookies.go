package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shiptrack/internal/carriers"
)

var carrierNames = []string{"usps", "ups"}

func newCookiesCmd(a *app) *cobra.Command {
	cookiesCmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage the carrier sessions used for direct requests",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, args); err != nil {
				return err
			}
			if a.serverURL != "" {
				return errors.New("cookies commands manage local sessions and cannot use --server")
			}
			return nil
		},
	}

	cookiesCmd.AddCommand(
		newCookiesImportCmd(a),
		newCookiesClearCmd(a),
		newCookiesStatusCmd(a),
	)
	return cookiesCmd
}

func newCookiesImportCmd(a *app) *cobra.Command {
	var src carriers.CookieSource

	cmd := &cobra.Command{
		Use:   "import <usps|ups>",
		Short: "Seed a carrier session from your browser or a cookie export",
		Long: `Import cookies for a carrier's site from an installed browser profile
or a JSON cookie export, so tracking can skip the headless browser.`,
		Example: `  shiptrack cookies import ups --browser chrome
  shiptrack cookies import usps --file cookies.json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: carrierNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(src.Browsers) == 0 && src.File == "" {
				err := errors.New("specify --browser or --file")
				a.out.PrintError(err)
				return err
			}

			defer a.close()
			if err := a.openTracker(nil); err != nil {
				a.out.PrintError(err)
				return err
			}

			carrier := strings.ToLower(args[0])
			count, warnings, err := a.tracker.ImportCookies(cmd.Context(), carrier, src)
			for _, w := range warnings {
				a.out.PrintInfo(w)
			}
			if err != nil {
				a.out.PrintError(err)
				return err
			}

			a.out.PrintSuccess(fmt.Sprintf("Imported %d %s cookies", count, carrier))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&src.Browsers, "browser", nil, "Browser to read cookies from (chrome, firefox, safari, edge, brave, ...); repeatable")
	cmd.Flags().StringVar(&src.File, "file", "", "JSON cookie export to read")
	return cmd
}

func newCookiesClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "clear <usps|ups>...",
		Short:     "Forget stored carrier sessions",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: carrierNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.openTracker(nil); err != nil {
				a.out.PrintError(err)
				return err
			}

			for _, carrier := range args {
				carrier = strings.ToLower(carrier)
				if err := a.tracker.ClearCookies(cmd.Context(), carrier); err != nil {
					a.out.PrintError(err)
					return err
				}
				a.out.PrintSuccess(fmt.Sprintf("Cleared %s cookies", carrier))
			}
			return nil
		},
	}
}

func newCookiesStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [usps|ups]...",
		Short: "Show whether each carrier has a stored session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.openTracker(nil); err != nil {
				a.out.PrintError(err)
				return err
			}

			if len(args) == 0 {
				args = carrierNames
			}
			for _, carrier := range args {
				carrier = strings.ToLower(carrier)
				state, err := a.tracker.SessionState(cmd.Context(), carrier)
				if err != nil {
					a.out.PrintError(err)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", carrier, state)
			}
			return nil
		},
	}
}
