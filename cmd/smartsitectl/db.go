package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextmonthlab/smartsite/internal/database"
	"github.com/nextmonthlab/smartsite/internal/repository"
	"github.com/nextmonthlab/smartsite/internal/service"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := databaseConfig(c.v)
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg, c.logger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Показать версию схемы БД",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := databaseConfig(c.v)
			if err != nil {
				return err
			}
			state, err := database.Status(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case c.jsonOut:
				return printJSON(out, state)
			case state.Empty:
				fmt.Fprintln(out, "Миграции не применялись")
			default:
				fmt.Fprintf(out, "version=%d dirty=%t\n", state.Version, state.Dirty)
			}
			return nil
		},
	})
	return cmd
}

func newModulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Каталог модулей",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Зарегистрировать announcement-модули",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := databaseConfig(c.v)
			if err != nil {
				return err
			}
			logger := c.logger(cmd)
			pool, err := database.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := service.NewModuleService(repository.NewUnitOfWork(pool), logger)
			modules, err := svc.RegisterAnnouncementModules(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, modules)
			}
			for _, m := range modules {
				fmt.Fprintf(out, "%s\t%s\n", m.ID, m.Status)
			}
			return nil
		},
	})
	return cmd
}
