package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"field-history/internal/app"
	"field-history/internal/config"
	"field-history/internal/maintenance"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fieldhistory",
		Short:        "Maintain recorded field history",
		SilenceUsage: true,
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Record the current value of every tracked field that has no history yet",
		Args:  cobra.NoArgs,
		RunE:  runBackfill,
	}

	var entityType, fromField, toField string
	renameCmd := &cobra.Command{
		Use:   "rename",
		Short: "Relabel the history of a renamed field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(cmd, entityType, fromField, toField)
		},
	}
	renameCmd.Flags().StringVar(&entityType, "entity-type", "", "Entity type whose history is renamed, e.g. models.pizzaorder")
	renameCmd.Flags().StringVar(&fromField, "from-field", "", "Field name currently stored in history")
	renameCmd.Flags().StringVar(&toField, "to-field", "", "New field name")
	for _, name := range []string{"entity-type", "from-field", "to-field"} {
		_ = renameCmd.MarkFlagRequired(name)
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return app.Migrate(cfg)
		},
	}

	rootCmd.AddCommand(backfillCmd, renameCmd, migrateCmd)
	return rootCmd
}

func openApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := maintenance.Backfill(cmd.Context(), a.Registry, a.History)
	if err != nil {
		return err
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records created\n", t, counts[t])
	}
	return nil
}

func runRename(cmd *cobra.Command, entityType, from, to string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := maintenance.Rename(cmd.Context(), a.Registry, a.History, entityType, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d records renamed from %s to %s\n", n, from, to)
	return nil
}
