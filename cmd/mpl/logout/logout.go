package logout

import (
	"fmt"

	"github.com/meza/minecraft-modpack-launcher/internal/auth"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/meza/minecraft-modpack-launcher/internal/tui"
	"github.com/spf13/cobra"
)

type credentialStore interface {
	Clear() error
}

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: i18n.T("cmd.logout.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, auth.NewKeyringCache())
		},
	}
}

func run(cmd *cobra.Command, store credentialStore) error {
	colorize := tui.ShouldColorize(cmd.OutOrStdout())
	if err := store.Clear(); err != nil {
		cmd.PrintErrln(fmt.Sprintf("%s %s", tui.ErrorIcon(colorize), i18n.T("cmd.logout.error", i18n.Tvars{
			Data: &i18n.TData{"error": err.Error()},
		})))
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", tui.SuccessIcon(colorize), i18n.T("cmd.logout.success"))
	return nil
}
