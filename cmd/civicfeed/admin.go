package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/petr-muller/civicfeed/internal/civic/admin"
	"github.com/petr-muller/civicfeed/internal/civic/model"
	"github.com/petr-muller/civicfeed/internal/civic/service"
)

type adminOptions struct {
	query string
	tab   string
	sla   time.Duration
	out   string
}

func newAdminCmd() *cobra.Command {
	var o adminOptions
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review reported issues (admins only)",
	}
	cmd.PersistentFlags().StringVarP(&o.query, "query", "q", "", "Only issues whose title, location, ward or assignee contain the text")
	cmd.PersistentFlags().StringVar(&o.tab, "tab", string(admin.TabAll), "Status tab: all, open, in-progress or resolved")

	kpisCmd := &cobra.Command{
		Use:   "kpis",
		Short: "Show open and overdue counts per ward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, issues, err := adminIssues(cmd, o)
			if err != nil {
				return err
			}
			defer svc.Close()

			kpis := admin.ComputeKPIs(issues, time.Now(), o.sla)
			fmt.Printf("Open: %d\nOverdue (older than %s): %d\n", kpis.Open, o.sla, kpis.Overdue)
			if len(kpis.Wards) > 0 {
				fmt.Println("Open issues per ward:")
				for _, w := range kpis.Wards {
					fmt.Printf("  %-20s %d\n", w.Ward, w.Count)
				}
			}
			return nil
		},
	}
	kpisCmd.Flags().DurationVar(&o.sla, "sla", admin.DefaultSLA, "How long an issue may stay open before it is overdue")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered issues as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, issues, err := adminIssues(cmd, o)
			if err != nil {
				return err
			}
			defer svc.Close()

			if o.out == "" || o.out == "-" {
				return admin.ExportCSV(os.Stdout, issues)
			}
			f, err := os.Create(o.out)
			if err != nil {
				return fmt.Errorf("cannot create %s: %w", o.out, err)
			}
			if err := admin.ExportCSV(f, issues); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Exported %d issues to %s\n", len(issues), o.out)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&o.out, "output", "o", "", "Output file, stdout when empty")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List issues matching the filter",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, issues, err := adminIssues(cmd, o)
				if err != nil {
					return err
				}
				defer svc.Close()

				if len(issues) == 0 {
					fmt.Println("No issues match the filter")
					return nil
				}
				for _, issue := range issues {
					printAdminIssue(issue)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <issue-id>",
			Short: "Show the details of an issue",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := authorizedService(cmd)
				if err != nil {
					return err
				}
				defer svc.Close()

				issue, ok := svc.Cache().Get(args[0])
				if !ok {
					return fmt.Errorf("issue '%s' not found", args[0])
				}
				printAdminIssue(issue)
				fmt.Printf("  %s\n", issue.Description)
				if issue.Location != "" {
					fmt.Printf("  Location: %s\n", issue.Location)
				}
				if issue.Category != "" {
					fmt.Printf("  Category: %s", issue.Category)
					if c := model.FormatConfidence(issue.AIConfidence); c != "" {
						fmt.Printf(" (AI confidence %s)", c)
					}
					fmt.Println()
				}
				if issue.AISummary != "" {
					fmt.Printf("  AI summary: %s\n", issue.AISummary)
				}
				if issue.Image != "" {
					fmt.Printf("  Image: %s\n", issue.Image)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <issue-id>",
			Short: "Delete an issue",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := authorizedService(cmd)
				if err != nil {
					return err
				}
				defer svc.Close()

				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("cannot delete issue: %w", err)
				}
				fmt.Printf("Issue '%s' deleted\n", args[0])
				return nil
			},
		},
		kpisCmd,
		exportCmd,
	)
	return cmd
}

// authorizedService checks the admin role and loads the feed
func authorizedService(cmd *cobra.Command) (*service.Service, error) {
	svc, err := createService()
	if err != nil {
		return nil, err
	}
	if err := svc.Admin().Authorize(cmd.Context()); err != nil {
		svc.Close()
		return nil, err
	}
	if _, err := svc.LoadFeed(cmd.Context()); err != nil {
		svc.Close()
		return nil, fmt.Errorf("cannot load feed: %w", err)
	}
	return svc, nil
}

func adminIssues(cmd *cobra.Command, o adminOptions) (*service.Service, []model.Issue, error) {
	tab, err := admin.ParseTab(o.tab)
	if err != nil {
		return nil, nil, err
	}
	svc, err := authorizedService(cmd)
	if err != nil {
		return nil, nil, err
	}
	filter := admin.Filter{Query: o.query, Tab: tab}
	return svc, filter.Apply(svc.Cache().Issues()), nil
}

func printAdminIssue(issue model.Issue) {
	fmt.Printf("%s  %-12s  %s", issue.Key(), issue.EffectiveStatus().Label(), issue.Title)
	if issue.Ward != "" {
		fmt.Printf(" [%s]", issue.Ward)
	}
	if issue.AssignedTo != "" {
		fmt.Printf(" assigned to %s", issue.AssignedTo)
	}
	if !issue.CreatedAt.IsZero() {
		fmt.Printf(" reported %s", issue.CreatedAt.Local().Format("2006-01-02"))
	}
	fmt.Println()
}
