package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/mentor-ticket-service/internal/api/dto"
	"github.com/spec-kit/mentor-ticket-service/internal/app"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/service"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Print the triage-ordered ticket queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, asJSON, err := queueFilter(cmd)
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		views, err := a.Services.Query.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if asJSON {
			return writeQueueJSON(cmd.OutOrStdout(), views)
		}
		return writeQueueTable(cmd.OutOrStdout(), views)
	},
}

func init() {
	queueCmd.Flags().StringSlice("status", nil, "statuses to include")
	queueCmd.Flags().StringSlice("priority", nil, "priorities to include")
	queueCmd.Flags().String("sla", "", "on_time, at_risk or overdue")
	queueCmd.Flags().String("assignee", "", "mentor id or \"unassigned\"")
	queueCmd.Flags().Int("limit", 50, "maximum rows")
	queueCmd.Flags().Bool("json", false, "print JSON")
}

func queueFilter(cmd *cobra.Command) (service.TicketListFilter, bool, error) {
	var filter service.TicketListFilter
	flags := cmd.Flags()
	statuses, _ := flags.GetStringSlice("status")
	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	priorities, _ := flags.GetStringSlice("priority")
	for _, p := range priorities {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}
	if v, _ := flags.GetString("sla"); v != "" {
		s := domain.SLAStatus(v)
		filter.SLAStatus = &s
	}
	if v, _ := flags.GetString("assignee"); v != "" {
		filter.Assignee = &v
	}
	filter.Limit, _ = flags.GetInt("limit")
	asJSON, _ := flags.GetBool("json")
	return filter, asJSON, nil
}

func writeQueueJSON(w io.Writer, views []service.TicketView) error {
	out := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		out = append(out, dto.NewTicketResponse(&views[i].Ticket, views[i].SLAStatus))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeQueueTable(w io.Writer, views []service.TicketView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPRIORITY\tSTATUS\tSLA\tDUE\tASSIGNEE\tTITLE")
	for _, v := range views {
		t := v.Ticket
		assignee := t.Assignee()
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Key, t.Priority, t.Status, v.SLAStatus, t.SLADueAt.Format("2006-01-02 15:04"), assignee, t.Title)
	}
	return tw.Flush()
}
