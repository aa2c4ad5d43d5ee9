package cli

import (
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var secretKeys = map[string]bool{
	"api_key":      true,
	"access_token": true,
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the merged configuration: built-in defaults, the config file and
environment overrides. Credentials are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			settings := redact(app.Config.Settings())
			if output.IsJSON() {
				return output.JSON(settings)
			}
			data, err := toml.Marshal(settings)
			if err != nil {
				return err
			}
			output.Dim("# %s", app.Config.Path())
			output.Printf("%s", data)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Path()})
			} else {
				output.Println(app.Config.Path())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redact masks credentials and renders durations as strings so the settings
// encode the same way they are written in config.toml.
func redact(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, raw := range settings {
		switch v := raw.(type) {
		case map[string]interface{}:
			out[k] = redact(v)
		case time.Duration:
			out[k] = v.String()
		case string:
			if secretKeys[k] && v != "" {
				out[k] = "********"
			} else {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	return out
}
