// Command chronoplan is the ChronoPlan cloud sync CLI: sign in, browse the
// team/project catalog, toggle project leases, list version history and
// watch the push channel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronoplan/chronoplan/pkg/catalog"
	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/config"
	"github.com/chronoplan/chronoplan/pkg/history"
	"github.com/chronoplan/chronoplan/pkg/lock"
	"github.com/chronoplan/chronoplan/pkg/logging"
	"github.com/chronoplan/chronoplan/pkg/metrics"
	"github.com/chronoplan/chronoplan/pkg/models"
	"github.com/chronoplan/chronoplan/pkg/realtime"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "chronoplan",
	Short:         "ChronoPlan cloud sync client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagEmail    string
	flagPassword string
	flagDuration time.Duration
	flagToken    bool
)

func init() {
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "account password")
	loginCmd.MarkFlagRequired("email")
	loginCmd.MarkFlagRequired("password")

	lockCmd.Flags().DurationVar(&flagDuration, "duration", time.Hour, "lease duration")
	lockCmd.Flags().BoolVar(&flagToken, "with-token", false, "request a lock token for privileged saves")

	rootCmd.AddCommand(loginCmd, logoutCmd, lsCmd, lockCmd, unlockCmd, historyCmd, watchCmd)
}

// newClient loads configuration, initializes logging and builds the shared
// HTTP session with any saved token applied.
func newClient() (*client.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
	}); err != nil {
		return nil, nil, err
	}

	c := client.New(client.Config{BaseURL: cfg.ServerURL, Timeout: cfg.HTTPTimeout})
	if tf, err := client.LoadToken(); err == nil && !tf.IsExpired(0) {
		c.SetAuthToken(tf.Token)
	}
	return c, cfg, nil
}

func newLoader(c *client.Client) *catalog.Loader {
	return catalog.New(catalog.Config{
		Client: c,
		OnError: func(err error) {
			logging.Error("catalog load failed", logging.Err(err))
		},
	})
}

// findProject resolves "team/project" to a typed catalog entry.
func findProject(ctx context.Context, loader *catalog.Loader, location string) (models.Project, error) {
	path := models.ParsePath(location)
	if len(path) != 2 {
		return models.Project{}, fmt.Errorf("expected team/project, got %q", location)
	}

	entries, err := loader.Load(ctx, path[:1])
	if err != nil {
		return models.Project{}, err
	}
	for _, e := range entries {
		if p, ok := e.(models.Project); ok && p.Name == path[1] {
			return p, nil
		}
	}
	return models.Project{}, fmt.Errorf("project %q not found in team %q", path[1], path[0])
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := newClient()
		if err != nil {
			return err
		}
		host, _ := os.Hostname()
		resp, err := c.Login(cmd.Context(), flagEmail, flagPassword, host)
		if err != nil {
			return err
		}
		if err := client.SaveToken(&client.TokenFile{
			Token:     resp.Token,
			ExpiresAt: resp.ExpiresAt,
			Server:    cfg.ServerURL,
			Email:     flagEmail,
		}); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (token expires %s)\n", flagEmail, resp.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.DeleteToken()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [team]",
	Short: "List teams, or the projects of a team",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		loader := newLoader(c)

		var path models.Path
		if len(args) == 1 {
			path = models.ParsePath(args[0])
		}

		entries, err := loader.Load(cmd.Context(), path)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, e := range entries {
			marker := " "
			if e.IsDirectory() {
				marker = "d"
			} else if e.IsLocked(now) {
				marker = "L"
			}
			line := fmt.Sprintf("%s %s", marker, e.EntryName())
			if p, ok := e.(models.Project); ok && p.Lock.Active(now) {
				line += fmt.Sprintf("  [locked by %s until %s]",
					p.Lock.OwnerName, time.UnixMilli(p.Lock.ExpirationEpochMs).Format(time.RFC3339))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock <team/project>",
	Short: "Acquire the write lease on a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		loader := newLoader(c)
		project, err := findProject(cmd.Context(), loader, args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		if project.IsLocked(now) {
			if !project.CanChangeLock(c.UserID(), now) {
				return fmt.Errorf("already locked by %s", project.Lock.OwnerName)
			}
			fmt.Println("You already hold the lease.")
			return nil
		}

		mgr := lock.New(lock.Config{Client: c})
		lease, err := mgr.Toggle(cmd.Context(), project, flagToken, flagDuration)
		if err != nil {
			return err
		}
		if lease != nil {
			fmt.Printf("Locked until %s\n", time.UnixMilli(lease.ExpirationEpochMs).Format(time.RFC3339))
		} else {
			fmt.Println("Locked.")
		}
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <team/project>",
	Short: "Release the write lease on a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		loader := newLoader(c)
		project, err := findProject(cmd.Context(), loader, args[0])
		if err != nil {
			return err
		}

		if !project.IsLocked(time.Now()) {
			fmt.Println("Project is not locked.")
			return nil
		}

		mgr := lock.New(lock.Config{Client: c})
		if _, err := mgr.Toggle(cmd.Context(), project, false, 0); err != nil {
			return err
		}
		fmt.Println("Unlocked.")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <team/project>",
	Short: "List the version history of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		loader := newLoader(c)
		project, err := findProject(cmd.Context(), loader, args[0])
		if err != nil {
			return err
		}

		records, err := history.New(history.Config{Client: c}).Load(cmd.Context(), project)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No versions.")
			return nil
		}
		for _, r := range records {
			fmt.Println(r.DisplayName())
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the push channel and reload the catalog on changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := newClient()
		if err != nil {
			return err
		}
		loader := newLoader(c)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Prime the cache before subscribing so the first invalidation has
		// something to invalidate.
		if _, err := loader.Load(ctx, nil); err != nil {
			return err
		}

		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					logging.Error("metrics listener failed", logging.Err(err))
				}
			}()
		}

		push := realtime.New(realtime.Config{
			URL:             cfg.WSURL,
			AuthToken:       c.AuthToken(),
			HeartbeatDelay:  cfg.HeartbeatDelay,
			HeartbeatPeriod: cfg.HeartbeatPeriod,
			OnFailure: func(err error) {
				logging.Error("push channel failure", logging.Err(err))
				stop()
			},
		})

		push.OnStructureChange(func() {
			loader.Invalidate()
			if res := <-loader.LoadAsync(ctx, nil); res.Err == nil {
				fmt.Printf("Catalog changed: %d teams\n", len(res.Entries))
			}
		})
		push.OnLockStatusChange(func(payload json.RawMessage) {
			fmt.Printf("Lock status changed: %s\n", payload)
		})

		if err := push.Start(ctx); err != nil {
			return err
		}
		defer push.Close()

		fmt.Println("Watching for changes (Ctrl-C to stop)...")
		<-ctx.Done()
		return nil
	},
}
