package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextmonthlab/smartsite/internal/service"
)

func newDashboardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <tenantId>",
		Short: "Сводка admin-панели тенанта по SOT-дереву",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd)
			if err != nil {
				return err
			}
			summary, err := service.Summarize(cmd.Context(), store, args[0], time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, summary)
			}
			s := summary.Summary
			fmt.Fprintf(out, "tenant           %s\n", summary.TenantID)
			fmt.Fprintf(out, "insights         %d (pending %d)\n", s.Insights.Total, s.Insights.Pending)
			fmt.Fprintf(out, "blog posts       %d (published %d)\n", s.BlogPosts.Total, s.BlogPosts.Published)
			fmt.Fprintf(out, "themes           %d (active %d)\n", s.Themes.Total, s.Themes.Active)
			fmt.Fprintf(out, "innovation ideas %d (pending %d)\n", s.InnovationIdeas.Total, s.InnovationIdeas.Pending)
			fmt.Fprintf(out, "analytics events %d (today %d)\n", s.AnalyticsEvents.Total, s.AnalyticsEvents.TodayCount)
			fmt.Fprintf(out, "ai events        %d (success %.0f%%)\n", s.AIEvents.Total, s.AIEvents.SuccessRate*100)
			fmt.Fprintf(out, "tools            %d (enabled %d)\n", s.Tools.Total, s.Tools.Enabled)
			fmt.Fprintf(out, "insight users    %d (active %d)\n", s.InsightUsers.Total, s.InsightUsers.Active)
			return nil
		},
	}
}
