package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nextmonthlab/smartsite/internal/config"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

// cli — состояние одного запуска: флаги и загруженная конфигурация.
type cli struct {
	configFile string
	jsonOut    bool
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "smartsitectl",
		Short:        "Служебные операции SmartSite",
		Version:      config.Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "файл конфигурации YAML (по умолчанию ./smartsitectl.yaml)")
	root.PersistentFlags().String("sot-dir", "", "корень SOT-хранилища (по умолчанию ./data)")
	root.PersistentFlags().String("log-level", "", "уровень логирования: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "вывод в JSON")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		v, err := loadConfig(c.configFile)
		if err != nil {
			return err
		}
		if err := v.BindPFlag(cfgKeySOTDir, root.PersistentFlags().Lookup("sot-dir")); err != nil {
			return err
		}
		if err := v.BindPFlag(cfgKeyLogLevel, root.PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		c.v = v
		return nil
	}

	root.AddCommand(
		newVersionCmd(),
		newSOTCmd(c),
		newDashboardCmd(c),
		newMigrateCmd(c),
		newModulesCmd(c),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Версия smartsitectl",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "smartsitectl", config.Version)
		},
	}
}

// logger пишет в stderr команды, чтобы stdout оставался машиночитаемым.
func (c *cli) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(c.v.GetString(cfgKeyLogLevel))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (c *cli) store(cmd *cobra.Command) (*sotstore.Store, error) {
	return sotstore.New(c.v.GetString(cfgKeySOTDir), c.logger(cmd))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
