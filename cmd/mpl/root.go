package mpl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/meza/minecraft-modpack-launcher/cmd/mpl/launch"
	"github.com/meza/minecraft-modpack-launcher/cmd/mpl/logout"
	"github.com/meza/minecraft-modpack-launcher/cmd/mpl/prepare"
	"github.com/meza/minecraft-modpack-launcher/cmd/mpl/version"
	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/environment"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func Command() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           constants.CommandName,
		Short:         i18n.T("app.description"),
		Version:       environment.AppVersion(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cobra.MousetrapHelpText = "" // allow the app to run in windows by clicking the exe

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", i18n.T("flag.config"))
	flags.String("root", "", i18n.T("flag.root"))
	flags.String("modpack-url", "", i18n.T("flag.modpack_url"))
	flags.String("username", "", i18n.T("flag.username"))
	flags.String("java", "", i18n.T("flag.java"))
	flags.String("loader", "", i18n.T("flag.loader"))
	flags.Bool("telemetry", true, i18n.T("flag.telemetry"))
	flags.BoolP("quiet", "q", false, i18n.T("flag.quiet"))
	flags.BoolP("debug", "d", false, i18n.T("flag.debug"))
	flags.Bool("perf", false, i18n.T("flag.perf"))
	flags.String("perf-out-dir", "", i18n.T("flag.perf_out_dir"))

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.AddCommand(launch.Command())
	rootCmd.AddCommand(prepare.Command())
	rootCmd.AddCommand(logout.Command())
	rootCmd.AddCommand(version.Command())

	translateDefaultHelpFacilities(rootCmd)
	fixFlagUsageAlignment(rootCmd)

	return rootCmd
}

func translateDefaultHelpFacilities(rootCmd *cobra.Command) {
	subcommands := rootCmd.Commands()
	allCommands := make([]*cobra.Command, 0, len(subcommands)+1)
	allCommands = append(allCommands, rootCmd)
	allCommands = append(allCommands, subcommands...)

	for _, cmd := range allCommands {
		cmd.InitDefaultHelpFlag()
		flags := cmd.Flags()
		flags.Lookup("help").Usage = i18n.T("cmd.help.template", i18n.Tvars{
			Data: &i18n.TData{"command": cmd.Name()},
		})
	}

	rootCmd.InitDefaultHelpCmd()
	helpCmd, _, e := rootCmd.Find([]string{"help"})

	if e == nil {
		helpCmd.Short = i18n.T("cmd.help.usage.short")
		helpCmd.Long = i18n.T("cmd.help.usage.long", i18n.Tvars{
			Data: &i18n.TData{"appName": rootCmd.Name()},
		})
		helpCmd.Run = func(c *cobra.Command, args []string) {
			cmd, _, e := c.Root().Find(args)
			if cmd == nil || e != nil {
				c.PrintErrln(i18n.T("cmd.help.error", i18n.Tvars{
					Data: &i18n.TData{"topic": fmt.Sprintf("%#q", args)},
				}) + "\n")
				cobra.CheckErr(c.Root().Usage())
			} else {
				cmd.InitDefaultHelpFlag()    // make possible 'help' flag to be shown
				cmd.InitDefaultVersionFlag() // make possible 'version' flag to be shown
				cobra.CheckErr(cmd.Help())
			}
		}
	}
}

func fixFlagUsageAlignment(rootCmd *cobra.Command) {
	width, _, _ := term.GetSize(int(os.Stdout.Fd()))
	usageTemplate := rootCmd.UsageTemplate()
	usageTemplate = strings.ReplaceAll(usageTemplate, ".FlagUsages", fmt.Sprintf(".FlagUsagesWrapped %d", width))
	rootCmd.SetUsageTemplate(usageTemplate)
}

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return Command().ExecuteContext(ctx)
}
