package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSOTCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sot",
		Short: "Записи SOT-хранилища тенантов",
	}
	cmd.AddCommand(newSOTListCmd(c), newSOTGetCmd(c), newSOTPutCmd(c))
	return cmd
}

func newSOTListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenantId> <category>",
		Short: "Записи категории тенанта, от новых к старым",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd)
			if err != nil {
				return err
			}
			recs, err := store.Read(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, recs)
			}
			for _, rec := range recs {
				id := rec.String("id")
				if id == "" {
					id = "-"
				}
				fmt.Fprintf(out, "%s\t%s\n", id, rec.String("createdAt"))
			}
			return nil
		},
	}
}

func newSOTGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenantId> <category> <file>",
		Short: "Одна запись по имени файла",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd)
			if err != nil {
				return err
			}
			rec, ok, err := store.ReadOne(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("запись %s/%s/%s не найдена", args[0], args[1], args[2])
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newSOTPutCmd(c *cli) *cobra.Command {
	var fileName string

	cmd := &cobra.Command{
		Use:   "put <tenantId> <category> <json>",
		Short: "Записать JSON-объект как новую запись, вывести имя файла",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data map[string]any
			if err := json.Unmarshal([]byte(args[2]), &data); err != nil {
				return fmt.Errorf("ожидается JSON-объект: %w", err)
			}
			if data == nil {
				return fmt.Errorf("ожидается JSON-объект, получен null")
			}

			store, err := c.store(cmd)
			if err != nil {
				return err
			}
			name, err := store.Write(cmd.Context(), args[0], args[1], data, fileName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().StringVar(&fileName, "file-name", "", "имя файла (по умолчанию генерируется)")
	return cmd
}
