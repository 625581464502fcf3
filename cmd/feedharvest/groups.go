package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedharvest/pkg/facebook"
	"feedharvest/pkg/models"
)

var groupName string

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Scrape tracked Facebook groups, or manage them",
	Long: `Without a subcommand, run one pass over every tracked Facebook group:
recent posts and the first comments of new posts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, models.RunGroups, nil)
	},
}

var groupsAddCmd = &cobra.Command{
	Use:   "add <group id or link>",
	Short: "Track a Facebook group",
	Long: `Track a Facebook group. The name is discovered on the next groups run
when --name is not given.`,
	Example: `  feedharvest groups add https://www.facebook.com/groups/123456789/
  feedharvest groups add 123456789 --name "Trail runners"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := facebook.ParseGroupID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		g := models.Group{ID: id, Name: groupName, URL: facebook.PublicGroupURL(id)}
		if err := a.catalog.UpsertGroup(cmd.Context(), g); err != nil {
			return err
		}
		a.out.Success("Tracking group " + id)
		return nil
	},
}

var groupsRemoveCmd = &cobra.Command{
	Use:   "remove <group id or link>",
	Short: "Stop tracking a Facebook group",
	Long:  "Stop tracking a Facebook group. Posts already harvested are kept.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := facebook.ParseGroupID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.catalog.DeleteGroup(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("group %s is not tracked", id)
		}
		a.out.Success("Stopped tracking group " + id)
		return nil
	},
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked Facebook groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := a.catalog.GetAllGroups(cmd.Context())
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			a.out.Dim("No tracked groups. Add one with 'feedharvest groups add <link>'.")
			return nil
		}
		rows := make([][]string, 0, len(groups))
		for _, g := range groups {
			rows = append(rows, []string{g.ID, orDash(g.Name), formatWhen(g.LastCheckedAt), g.URL})
		}
		a.out.Table([]string{"ID", "NAME", "LAST CHECKED", "URL"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.AddCommand(groupsAddCmd, groupsRemoveCmd, groupsListCmd)
	groupsAddCmd.Flags().StringVar(&groupName, "name", "", "display name of the group")
}
