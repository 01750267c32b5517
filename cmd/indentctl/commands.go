package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyjia/indent-flow/internal/application/service"
	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/container"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List workflow stages with their owning roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := procurement.Table()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tNAME\tROLE\tNEXT")
		for _, stage := range domainwf.AllStages() {
			role, _ := table.Role(stage)
			targets := make([]string, 0)
			for _, t := range table.Targets(stage) {
				targets = append(targets, t.Format())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", stage.Format(), stage.Name(), role, strings.Join(targets, ","))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an indent or purchase order with its step history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *container.Container) error {
			services := c.Services()
			id := args[0]

			indent, err := services.Indent.GetIndent(cmd.Context(), id)
			if err == nil {
				if jsonOutput {
					return printJSON(indent)
				}
				fmt.Printf("%s  %s  [%s]  requested by %s\n", indent.ID, indent.Title, indent.Status, indent.RequestedBy)
				for _, item := range indent.Items {
					fmt.Printf("  %-12s %-30s %s %s  vendor=%s po=%s\n", item.Code, item.Name, item.Quantity, item.Unit, item.SelectedVendor, item.GroupedPO)
				}
				return printHistory(indent.History)
			}
			if !errors.Is(err, domainwf.ErrNotFound) {
				return err
			}

			po, err := services.PurchaseOrder.GetPurchaseOrder(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(po)
			}
			fmt.Printf("%s  vendor %s  [%s]  total %s\n", po.ID, po.VendorCode, po.Status, po.Total)
			for _, line := range po.Lines {
				fmt.Printf("  %-10s %-12s %s x %s = %s\n", line.IndentID, line.ItemCode, line.Quantity, line.UnitPrice, line.Amount)
			}
			return printHistory(po.History)
		})
	},
}

func printHistory(history entity.StepHistory) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nSEQ\tSTAGE\tROLE\tACTION\tSTATUS\tNEXT\tCOMMENTS")
	for _, rec := range history.Records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Seq, rec.Stage.Format(), rec.Role, rec.Action, rec.Status, rec.NextStep.Format(), rec.Comments)
	}
	return w.Flush()
}

var dashboardRole string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show open work grouped by stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *container.Container) error {
			dashboard, err := c.Services().Dashboard.Dashboard(cmd.Context())
			if err != nil {
				return err
			}

			if dashboardRole != "" {
				role := domainwf.Role(dashboardRole)
				if !role.IsValid() {
					return fmt.Errorf("unknown role %q", dashboardRole)
				}
				dashboard = filterDashboard(dashboard, role)
			}

			if jsonOutput {
				return printJSON(dashboard)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tROLE\tENTITY\tLABEL\tSINCE")
			for _, summary := range dashboard.Stages {
				for _, item := range summary.Items {
					fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\t%s\n",
						summary.Stage.Format(), summary.StageName, summary.Role, item.EntityID, item.Label, item.Since.Format("2006-01-02 15:04"))
				}
			}
			fmt.Fprintf(w, "\nTotal open: %d\n", dashboard.Total)
			return w.Flush()
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashboardRole, "role", "r", "", "Only show stages owned by this role")
}

// filterDashboard keeps the stages owned by role
func filterDashboard(d *service.Dashboard, role domainwf.Role) *service.Dashboard {
	filtered := &service.Dashboard{}
	for _, summary := range d.Stages {
		if summary.Role != role {
			continue
		}
		filtered.Stages = append(filtered.Stages, summary)
		filtered.Total += summary.Count
	}
	return filtered
}

var (
	groupDryRun bool
	groupAs     string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group approved items at Sort Vendors into purchase orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *container.Container) error {
			indents := c.Services().Indent

			if groupDryRun {
				plan, err := indents.PreviewGrouping(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(plan)
				}
				for _, batch := range plan.Batches {
					fmt.Printf("%s  %d lines  total %s  indents %s\n", batch.VendorCode, len(batch.Lines), batch.Total, strings.Join(batch.IndentIDs(), ","))
				}
				printUngrouped(plan.Ungrouped)
				return nil
			}

			actor := entity.Actor{Email: groupAs, Role: domainwf.RolePurchaseExecutive}
			if groupAs == "" {
				actor = entity.SystemActor
			}

			result, err := indents.GroupItems(cmd.Context(), actor)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(result)
			}
			for _, po := range result.PurchaseOrders {
				fmt.Printf("created %s for vendor %s, total %s\n", po.ID, po.VendorCode, po.Total)
			}
			if len(result.AdvancedIndents) > 0 {
				fmt.Printf("advanced to Place PO: %s\n", strings.Join(result.AdvancedIndents, ", "))
			}
			printUngrouped(result.Ungrouped)
			return nil
		})
	},
}

func init() {
	groupCmd.Flags().BoolVar(&groupDryRun, "dry-run", false, "Preview batches without creating purchase orders")
	groupCmd.Flags().StringVar(&groupAs, "as", "", "Purchase executive email to record as the acting user (default: system)")
}

func printUngrouped(items []workflow.UngroupedItem) {
	for _, item := range items {
		fmt.Printf("skipped %s/%s: %s\n", item.IndentID, item.ItemCode, item.Reason)
	}
}
