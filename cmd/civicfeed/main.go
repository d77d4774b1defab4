package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/petr-muller/civicfeed/internal/civic/model"
	"github.com/petr-muller/civicfeed/internal/civic/service"
	"github.com/petr-muller/civicfeed/internal/civic/shuffle"
	"github.com/petr-muller/civicfeed/internal/civic/storage"
	"github.com/petr-muller/civicfeed/internal/civic/ui"
	"github.com/petr-muller/civicfeed/internal/config"
	"github.com/petr-muller/civicfeed/internal/flagutil"
)

var (
	apiOptions   flagutil.APIOptions
	logLevel     string
	settingsPath string
	snapshotName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "civicfeed",
		Short: "Browse and report civic issues from the terminal",
		Long: `civicfeed is a client for a civic issue reporting service.
It shows the issue feed in a shuffled order, lets you like and comment on
issues, report new ones with an AI-drafted description, and gives admins a
review console.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	defaultSettings, err := config.SettingsPath()
	if err != nil {
		logrus.WithError(err).Fatal("cannot determine settings path")
	}

	apiOptions.AddPFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", defaultSettings, "Path to the settings file")

	rootCmd.AddCommand(
		newFeedCmd(),
		newWatchCmd(),
		newListCmd(),
		newLikeCmd(),
		newCommentCmd(),
		newCommentsCmd(),
		newShareCmd(),
		newPostCmd(),
		newAdminCmd(),
		newSnapshotsCmd(),
	)

	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}

func createService(shuffleOpts ...shuffle.Option) (*service.Service, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load settings: %w", err)
	}
	apiOptions.Complete(settings)
	if err := apiOptions.Validate(); err != nil {
		return nil, err
	}

	dataDir, err := storage.SnapshotDataDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine data directory: %w", err)
	}

	return service.NewService(service.Options{
		Client:         apiOptions.Client(),
		Tokens:         apiOptions.TokenSource(),
		WSURL:          apiOptions.WSURL,
		Origin:         apiOptions.Origin,
		PostRoute:      apiOptions.PostRoute,
		DataDir:        dataDir,
		ShuffleOptions: shuffleOpts,
	}), nil
}

// logToFile moves logging into a file while the TUI owns the terminal
func logToFile() (func(), error) {
	dataDir, err := storage.SnapshotDataDir()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Dir(dataDir)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "civicfeed.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() {
		logrus.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

func newFeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Browse the issue feed interactively",
		Long: `Browse the issue feed in a shuffled order. New issues announced on the
realtime channel appear at the top while the feed is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd.Context(), false)
		},
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [snapshot-name]",
		Short: "Browse the feed highlighting what changed since the last visit",
		Long: `Fetch the feed, compare it with the snapshot saved on the previous visit
and browse it with new and changed issues highlighted. The snapshot is then
replaced with the current feed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotName = storage.DefaultSnapshot
			if len(args) == 1 {
				snapshotName = args[0]
			}
			return runFeed(cmd.Context(), true)
		},
	}
	return cmd
}

func runFeed(ctx context.Context, watch bool) error {
	notifier := &ui.Notifier{}
	svc, err := createService(shuffle.WithOnUpdate(func([]model.Issue) { notifier.Notify() }))
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Cache().OnChange(notifier.Notify)

	var changes *storage.FeedResult
	if watch {
		if changes, err = svc.Watch(ctx, service.WatchOptions{Name: snapshotName}); err != nil {
			return fmt.Errorf("cannot watch feed: %w", err)
		}
	} else if _, err := svc.LoadFeed(ctx); err != nil {
		return fmt.Errorf("cannot load feed: %w", err)
	}

	restore, err := logToFile()
	if err != nil {
		return err
	}
	defer restore()

	if err := svc.StartRealtime(ctx); err != nil {
		logrus.WithError(err).Debug("Continuing without realtime updates")
	}

	program := tea.NewProgram(ui.NewModel(ctx, svc, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	notifier.Attach(program)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("cannot run TUI: %w", err)
	}
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the issue feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			issues, err := svc.LoadFeed(cmd.Context())
			if err != nil {
				return fmt.Errorf("cannot load feed: %w", err)
			}
			if len(issues) == 0 {
				fmt.Println("No issues found")
				return nil
			}
			for _, issue := range issues {
				printIssue(issue)
			}
			return nil
		},
	}
}

func printIssue(issue model.Issue) {
	fmt.Printf("%s  %-12s  %s", issue.Key(), issue.EffectiveStatus().Label(), issue.Title)
	if issue.Ward != "" {
		fmt.Printf(" [%s]", issue.Ward)
	}
	fmt.Printf(" (%d likes, %d comments)\n", issue.Likes, issue.Comments)
}

func newLikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "like <issue-id>",
		Short: "Like an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.LoadFeed(cmd.Context()); err != nil {
				return fmt.Errorf("cannot load feed: %w", err)
			}
			if err := svc.Like(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cannot like issue: %w", err)
			}
			issue, _ := svc.Cache().Get(args[0])
			fmt.Printf("Liked '%s' (%d likes)\n", issue.Title, issue.Likes)
			return nil
		},
	}
}

func newCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <issue-id> <text>",
		Short: "Comment on an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.LoadFeed(cmd.Context()); err != nil {
				return fmt.Errorf("cannot load feed: %w", err)
			}
			if err := svc.Comment(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("cannot add comment: %w", err)
			}
			fmt.Println("Comment added")
			return nil
		},
	}
}

func newCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments <issue-id>",
		Short: "Show the comments of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			state, _ := svc.Comments(args[0]).Load(cmd.Context())
			if state.Err != nil {
				return fmt.Errorf("cannot fetch comments: %w", state.Err)
			}
			if len(state.Comments) == 0 {
				fmt.Println("No comments yet")
				return nil
			}
			for _, c := range state.Comments {
				author := c.AuthorName
				if author == "" {
					author = "Anonymous"
				}
				fmt.Printf("%s (%s): %s\n", author, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Text)
			}
			return nil
		},
	}
}

func newShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <issue-id>",
		Short: "Print the share link of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()
			fmt.Println(svc.ShareURL(args[0]))
			return nil
		},
	}
}

func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage the feed snapshots used by watch",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			items, err := svc.Snapshots()
			if err != nil {
				return fmt.Errorf("cannot list snapshots: %w", err)
			}
			if len(items) == 0 {
				fmt.Println("No stored snapshots found")
				return nil
			}
			fmt.Println("Stored snapshots:")
			for _, item := range items {
				fmt.Printf("  - %s (%d issues", item.Name, item.IssueCount)
				if !item.LastFetched.IsZero() {
					fmt.Printf(", last fetched: %s", item.LastFetched.Format("2006-01-02 15:04"))
				}
				fmt.Printf(")\n")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <snapshot-name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.DeleteSnapshot(args[0]); err != nil {
				return fmt.Errorf("cannot delete snapshot: %w", err)
			}
			fmt.Printf("Snapshot '%s' deleted successfully\n", args[0])
			return nil
		},
	})
	return cmd
}
