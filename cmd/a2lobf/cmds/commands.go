package cmds

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/a2lobf/a2lobf/pkg/config"
	"github.com/a2lobf/a2lobf/pkg/logflags"
	"github.com/a2lobf/a2lobf/pkg/obfuscator"
	"github.com/a2lobf/a2lobf/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath is the path of the configuration file.
	configPath string
	// saveConfig makes the config command write the configuration file.
	saveConfig bool

	conf *config.Config
)

// errUsage is returned after the usage has been printed.
var errUsage = errors.New("usage")

const a2lobfCommandLongDesc = `a2lobf obfuscates an ELF file together with the A2L file describing it.

Every name of the debug info of the ELF file is replaced by a pseudonym and
every static address is masked. All sections but the debug info are removed.
The A2L file is rewritten so that its calibration objects get new names and
its symbol links name the obfuscated variables.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.Default()

	// Main a2lobf root command.
	rootCommand := &cobra.Command{
		Use:           "a2lobf <input ELF> <output ELF> <input A2L> <output A2L>",
		Short:         "a2lobf obfuscates an ELF file and its A2L description.",
		Long:          a2lobfCommandLongDesc,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			c, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := c.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			conf = c
			return nil
		},
		RunE: obfuscateCmd,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'a2lobf help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'a2lobf help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, defaults to config.yml in the a2lobf user configuration directory.")
	config.AddFlags(rootCommand.PersistentFlags())

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "a2lobf\n%s\n", version.A2lobfVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	}
	rootCommand.AddCommand(versionCommand)

	// 'config' subcommand.
	configCommand := &cobra.Command{
		Use:   "config",
		Short: "Prints the configuration in effect.",
		Long: `Prints the configuration in effect, that is the configuration file with the
command line flags applied. With --save the configuration is written back to
the configuration file instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if saveConfig {
				return config.SaveConfig(conf, configPath)
			}
			return config.Write(cmd.OutOrStdout(), conf)
		},
	}
	configCommand.Flags().BoolVar(&saveConfig, "save", false, "Write the configuration file.")
	rootCommand.AddCommand(configCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	dwarf		Log the rebuild of the debug info
	a2l		Log the renaming of A2L objects
	elf		Log section removal and replacement
	symbols		Log the correlation of symbol links with the debug info

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func obfuscateCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 4 {
		cmd.SetOut(os.Stderr)
		cmd.Usage()
		return errUsage
	}
	defer logflags.Close()
	report, err := obfuscator.Run(obfuscator.Job{
		InputELF:  args[0],
		OutputELF: args[1],
		InputA2L:  args[2],
		OutputA2L: args[3],
		Config:    conf,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seed %d: %d names in %d debug entries, %d A2L objects renamed, %d of %d symbol links resolved\n",
		report.Seed, report.Names, report.DWARF.Entries, renamed(report), report.A2L.SymbolsResolved,
		report.A2L.SymbolsResolved+report.A2L.SymbolsUnresolved)
	return nil
}

func renamed(r *obfuscator.Report) int {
	n := 0
	for _, c := range r.A2L.Renamed {
		n += c
	}
	return n
}

// Execute runs the command line args and returns the exit status.
func Execute(args []string) int {
	cmd := New()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
