package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kommetio/kommet-core/internal/auth"
	"github.com/kommetio/kommet-core/internal/cli/ui"
	"github.com/kommetio/kommet-core/internal/config"
	"github.com/kommetio/kommet-core/internal/data"
	"github.com/kommetio/kommet-core/internal/env"
	"github.com/kommetio/kommet-core/internal/hooks"
	"github.com/kommetio/kommet-core/internal/labels"
	"github.com/kommetio/kommet-core/internal/log"
	"github.com/kommetio/kommet-core/internal/sharing"
	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
	"github.com/kommetio/kommet-core/internal/validation"
)

// NewQueryCommand creates the query command, which runs a DAL query against
// the configured environment and prints the result table.
func NewQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <DAL query>",
		Short: "Run a DAL query",
		Example: `  kommet query "SELECT id, name FROM app.Pigeon WHERE age > 7"
  kommet query "SELECT count(id) FROM app.Pigeon GROUP BY father.name"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			svc, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := svc.Query(ctx, args[0], auth.RootAuthData())
			if err != nil {
				return err
			}
			renderOutput(out)
			return nil
		},
	}
}

// bootstrap builds the full service stack from kommet.yml.
func bootstrap(ctx context.Context) (*data.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := log.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(ctx, store.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.URL})
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		db.Close()
		logger.Sync()
	}

	envID, err := types.NewKID(types.EnvPrefix, 1)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	e := env.New(envID, cfg.EnvName)

	labelStore := labels.NewStore(envID)
	triggers := hooks.NewExecutor(e.Triggers(), nil, logger)
	rules := validation.NewEngine(e.Rules(), labelStore, logger)
	sharings := sharing.NewService(sharing.NewSQLStore(db, store.NewSequenceAllocator(db)), logger)
	svc := data.NewService(e, db, triggers, rules, sharings, logger)

	if err := svc.RegisterBuiltins(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

func renderOutput(out *data.QueryOutput) {
	if out.Grouped {
		renderGrouped(out)
		return
	}
	if len(out.Records) == 0 {
		fmt.Println("0 row(s)")
		return
	}

	headers := out.Records[0].FieldNames()
	table := ui.NewTable(os.Stdout, headers)
	for _, rec := range out.Records {
		row := make([]string, len(headers))
		for i, name := range headers {
			v, err := rec.GetField(name)
			if err != nil {
				row[i] = ""
				continue
			}
			row[i] = formatValue(v)
		}
		table.AddRow(row...)
	}
	table.Render()
}

func renderGrouped(out *data.QueryOutput) {
	if len(out.Groups) == 0 {
		fmt.Println("0 row(s)")
		return
	}
	headers := out.Groups[0].Labels()
	table := ui.NewTable(os.Stdout, headers)
	for _, row := range out.Groups {
		cells := make([]string, len(headers))
		for i, label := range headers {
			cells[i] = formatValue(row.Value(label))
		}
		table.AddRow(cells...)
	}
	table.Render()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *types.Record:
		return val.ID().String()
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
