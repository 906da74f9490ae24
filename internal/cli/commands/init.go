package commands

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command, which writes kommet.yml after a
// short interactive setup.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a kommet.yml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat("kommet.yml"); err == nil {
				return fmt.Errorf("kommet.yml already exists")
			}

			var envName string
			if err := survey.AskOne(&survey.Input{
				Message: "Environment name:",
				Default: "default",
			}, &envName, survey.WithValidator(survey.Required)); err != nil {
				return err
			}

			var driver string
			if err := survey.AskOne(&survey.Select{
				Message: "Database driver:",
				Options: []string{"pgx", "sqlite3"},
				Default: "pgx",
			}, &driver); err != nil {
				return err
			}

			var dbURL string
			defaultURL := "postgres://localhost:5432/kommet?sslmode=disable"
			if driver == "sqlite3" {
				defaultURL = "kommet.db"
			}
			if err := survey.AskOne(&survey.Input{
				Message: "Database URL:",
				Default: defaultURL,
			}, &dbURL, survey.WithValidator(survey.Required)); err != nil {
				return err
			}

			var redisAddr string
			if err := survey.AskOne(&survey.Input{
				Message: "Redis address (empty to disable label cache):",
			}, &redisAddr); err != nil {
				return err
			}

			content := fmt.Sprintf(`env_name: %s

database:
  driver: %s
  url: %s

redis:
  addr: %q

log:
  level: info
  dev: false
`, envName, driver, dbURL, redisAddr)

			if err := os.WriteFile("kommet.yml", []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write kommet.yml: %w", err)
			}
			color.Green("Created kommet.yml")
			return nil
		},
	}
}
