package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/linkstash/linkstash/internal/client"
	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/errclass"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/retry"
	"github.com/linkstash/linkstash/internal/sources/bookmarkfile"
	"github.com/linkstash/linkstash/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "linkstash",
		Usage:   "Capture links from this device and keep them synced",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Save a link (queued locally when offline)",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "space", Usage: "space to file the link under"},
				},
				Action: addCommand,
			},
			{
				Name:   "list",
				Usage:  "List the local snapshot of your links",
				Action: listCommand,
			},
			{
				Name:  "sync",
				Usage: "Pull the full collection and drain the outbox",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "follow",
						Aliases: []string{"f"},
						Usage:   "stay connected and apply live changes until interrupted",
					},
				},
				Action: syncCommand,
			},
			{
				Name:      "import",
				Usage:     "Bulk-import links from a YAML file",
				ArgsUsage: "<file>",
				Action:    importCommand,
			},
			{
				Name:  "outbox",
				Usage: "Inspect and manage pending or failed captures",
				Subcommands: []*cli.Command{
					{
						Name:   "status",
						Usage:  "Show pending and failed entries",
						Action: outboxStatusCommand,
					},
					{
						Name:   "retry",
						Usage:  "Retry all failed entries",
						Action: outboxRetryCommand,
					},
					{
						Name:      "dismiss",
						Usage:     "Discard a failed entry",
						ArgsUsage: "<local-id>",
						Action:    outboxDismissCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		c := errclass.Classify(err)
		fmt.Fprintln(os.Stderr, c.Message)
		if c.Suggestion != "" {
			fmt.Fprintln(os.Stderr, c.Suggestion)
		}
		os.Exit(1)
	}
}

// setup wires the device client from the environment. Every command goes
// through here so the outbox survives across invocations. The API is
// returned alongside so follow mode can open the change stream.
func setup() (*client.Client, *client.Reconciler, *client.API, error) {
	cfg := config.LoadClient()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	outbox, err := client.NewOutbox(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	snapshot := client.NewSnapshot()
	api := client.NewAPI(cfg.ServerURL, cfg.Owner, cfg.OutboxTimeout, log)
	policy := retry.Policy{
		Attempts: cfg.OutboxAttempts,
		Delay:    cfg.OutboxDelay,
		Timeout:  cfg.OutboxTimeout,
	}

	c := client.New(snapshot, outbox, api, cfg.Owner, policy, log)
	r := client.NewReconciler(snapshot, outbox, api, log)
	return c, r, api, nil
}

func addCommand(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: linkstash add <url>", 2)
	}

	c, _, _, err := setup()
	if err != nil {
		return err
	}

	var spaceID *string
	if s := cCtx.String("space"); s != "" {
		spaceID = &s
	}

	link, err := c.Capture(context.Background(), cCtx.Args().First(), spaceID)
	if errors.Is(err, client.ErrAlreadySaved) {
		fmt.Printf("Already saved: %s\n", link.CanonicalURL)
		return nil
	}
	if err != nil {
		return err
	}

	if link.ID != "" {
		fmt.Printf("Saved %s\n", link.CanonicalURL)
	} else {
		fmt.Printf("Queued %s (will sync when the server is reachable)\n", link.CanonicalURL)
	}
	return nil
}

func listCommand(_ *cli.Context) error {
	c, r, _, err := setup()
	if err != nil {
		return err
	}

	// Best effort: offline listing falls back to whatever is queued locally.
	if err := r.Bootstrap(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "offline: showing local state only")
	}

	links := c.Snapshot().All()
	if len(links) == 0 {
		fmt.Println("No links saved yet.")
		return nil
	}

	for _, l := range links {
		marker := " "
		if l.ID == "" {
			marker = "~" // not yet synced
		}
		space := ""
		if l.SpaceID != nil {
			space = " [" + *l.SpaceID + "]"
		}
		fmt.Printf("%s %-40s %s%s\n", marker, l.Title, l.CanonicalURL, space)
	}
	return nil
}

func syncCommand(cCtx *cli.Context) error {
	c, r, api, err := setup()
	if err != nil {
		return err
	}

	if err := c.FlushOnce(context.Background()); err != nil {
		return err
	}

	if cCtx.Bool("follow") {
		return followChanges(c, r, api)
	}

	if err := r.Bootstrap(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Synced: %d links, %d pending, %d failed\n",
		c.Snapshot().Len(), len(c.Outbox().Pending()), len(c.Outbox().Failed()))
	return nil
}

// followChanges keeps the snapshot live until interrupted, printing every
// change as it lands. The reconciler re-pulls the full collection whenever
// the stream drops, so nothing is missed across reconnects.
func followChanges(c *client.Client, r *client.Reconciler, api *client.API) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancelWatch := c.Snapshot().OnChange(func(l *domain.Link, removed bool) {
		if removed {
			fmt.Printf("removed  %s\n", l.CanonicalURL)
			return
		}
		fmt.Printf("updated  %-40s %s\n", l.Title, l.CanonicalURL)
	})
	defer cancelWatch()

	fmt.Println("Following changes (Ctrl-C to stop)...")
	if err := r.Follow(ctx, api); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func importCommand(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: linkstash import <file>", 2)
	}

	c, _, _, err := setup()
	if err != nil {
		return err
	}

	file, err := bookmarkfile.NewLoader(cCtx.Args().First()).Load()
	if err != nil {
		return err
	}

	result := bookmarkfile.NewMapper().Map(file)
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "skipping %q: %s\n", skipped.URL, skipped.Reason)
	}

	ctx := context.Background()
	imported := 0
	for _, link := range result.Links {
		_, err := c.Capture(ctx, link.RawURL, link.SpaceID)
		if errors.Is(err, client.ErrAlreadySaved) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to import %q: %s\n",
				link.RawURL, errclass.Classify(err).Message)
			continue
		}
		imported++
	}

	fmt.Printf("Imported %d of %d links (%d skipped)\n",
		imported, len(file.Links), len(result.Skipped))
	return nil
}

func outboxStatusCommand(_ *cli.Context) error {
	c, _, _, err := setup()
	if err != nil {
		return err
	}

	pending := c.Outbox().Pending()
	failed := c.Outbox().Failed()

	if len(pending) == 0 && len(failed) == 0 {
		fmt.Println("Outbox is empty.")
		return nil
	}

	for _, e := range pending {
		fmt.Printf("pending  %s  %s\n", e.LocalID, describeEntry(e))
	}
	for _, e := range failed {
		fmt.Printf("failed   %s  %s  (%s)\n", e.LocalID, describeEntry(e), e.LastError)
	}
	return nil
}

func outboxRetryCommand(_ *cli.Context) error {
	c, _, _, err := setup()
	if err != nil {
		return err
	}
	if err := c.RetryFailed(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Retried: %d pending, %d still failed\n",
		len(c.Outbox().Pending()), len(c.Outbox().Failed()))
	return nil
}

func outboxDismissCommand(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: linkstash outbox dismiss <local-id>", 2)
	}

	c, _, _, err := setup()
	if err != nil {
		return err
	}
	if err := c.Outbox().Remove(cCtx.Args().First()); err != nil {
		return err
	}
	fmt.Println("Dismissed.")
	return nil
}

func describeEntry(e domain.OutboxEntry) string {
	switch {
	case e.Link != nil:
		return e.Link.CanonicalURL
	case e.TargetID != "":
		return string(e.Op) + " " + e.TargetID
	default:
		return string(e.Op)
	}
}
