package prepare

import (
	"github.com/meza/minecraft-modpack-launcher/cmd/mpl/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: i18n.T("cmd.prepare.short"),
		Long:  i18n.T("cmd.prepare.long"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return launch.RunPipeline(cmd, launch.DefaultDeps(), true)
		},
	}
}
