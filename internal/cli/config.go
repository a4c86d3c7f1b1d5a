package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}
	cmd.AddCommand(newConfigGenerateCommand(rootOpts))
	return cmd
}

func newConfigGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	var current bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a configuration file",
		Long: `Write the built-in default configuration as YAML. With --current the
configuration loaded from --config, .env files and QUERYKIT_ variables is
written instead.

Examples:
  querykit config generate > config.yaml
  querykit config generate --output config.yaml
  QUERYKIT_BACKEND_DRIVER=memory querykit config generate --current`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(rootOpts, cmd)

			cfg := config.Default()
			if current {
				loaded, err := config.Load(rootOpts.Config)
				if err != nil {
					return out.Fail(CodeConfig, "failed to load config", err)
				}
				cfg = *loaded
			}
			data, err := config.Generate(cfg)
			if err != nil {
				return out.Fail(CodeConfig, "failed to render config", err)
			}

			if output == "" {
				_, err = out.Writer.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return out.Fail(CodeConfig, "failed to write config", err)
			}
			out.VerboseLog("wrote %s", output)
			if rootOpts.Format == "json" {
				return out.Success(map[string]string{"file": output})
			}
			fmt.Fprintf(out.Writer, "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.Flags().BoolVar(&current, "current", false, "write the loaded configuration instead of the defaults")
	return cmd
}
