package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"feedharvest/pkg/catalog"
	"feedharvest/pkg/models"
)

var (
	runsLimit     int
	postsPlatform string
	postsOwner    string
	postsKind     string
	postsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.catalog.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				string(r.Kind),
				string(r.Status),
				formatWhen(r.StartedAt),
				strconv.Itoa(r.NewPostCount),
				strconv.Itoa(r.NewStoryCount),
				orDash(r.ErrorMessage),
			})
		}
		a.out.Table([]string{"ID", "KIND", "STATUS", "STARTED", "POSTS", "STORIES", "ERROR"}, rows)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run and its log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r, found, err := a.catalog.GetRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("run %d not found", id)
		}

		a.out.Highlight(fmt.Sprintf("Run #%d", r.ID))
		a.out.Info("Kind", string(r.Kind))
		a.out.Info("Status", string(r.Status))
		if r.Since != nil {
			a.out.Info("Since", r.Since.Format(time.RFC3339))
		}
		a.out.Info("Started", formatWhen(r.StartedAt))
		a.out.Info("Finished", formatWhen(r.FinishedAt))
		a.out.Info("New posts", strconv.Itoa(r.NewPostCount))
		a.out.Info("New stories", strconv.Itoa(r.NewStoryCount))
		if r.ErrorMessage != "" {
			a.out.Error("Error", r.ErrorMessage)
		}
		if r.Log != "" {
			fmt.Println()
			fmt.Print(r.Log)
		}
		return nil
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Browse harvested posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvested posts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := catalog.PostFilter{Owner: postsOwner, Kind: models.PostKind(postsKind), Limit: postsLimit}
		if postsPlatform != "" {
			p, err := models.ParsePlatform(postsPlatform)
			if err != nil {
				return err
			}
			f.Platform = p
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		posts, err := a.catalog.ListPosts(cmd.Context(), f)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(posts))
		for _, p := range posts {
			ts := "-"
			if p.HasTimestamp() {
				ts = p.Timestamp.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{p.ID, p.Owner, string(p.Kind), ts, truncate(p.Text, 60)})
		}
		a.out.Table([]string{"ID", "OWNER", "KIND", "POSTED", "TEXT"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd, postsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	postsCmd.AddCommand(postsListCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "number of runs to show")
	postsListCmd.Flags().StringVar(&postsPlatform, "platform", "", "instagram or facebook")
	postsListCmd.Flags().StringVar(&postsOwner, "owner", "", "account username or group id")
	postsListCmd.Flags().StringVar(&postsKind, "kind", "", "post, reel, story or group_post")
	postsListCmd.Flags().IntVarP(&postsLimit, "limit", "n", 20, "number of posts to show")
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes on one line
func truncate(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
