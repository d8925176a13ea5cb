package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/Hara602/regmon/internal/config"
	"github.com/Hara602/regmon/internal/core"
	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/history"
	"github.com/Hara602/regmon/internal/monitor/sources"
	"github.com/Hara602/regmon/internal/notify"
	"github.com/Hara602/regmon/pkg/logging"
	"github.com/Hara602/regmon/pkg/standard"
)

const usage = `usage: regmon <command> [flags]

commands:
  run     check every standard once, update the state file and notify (default)
  status  print the state file [-follow]
  check   fetch and extract a single standard without saving [-id]
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to an optional YAML config file")
	follow := fs.Bool("follow", false, "status: keep printing when the state file changes")
	id := fs.String("id", "", "check: id of the standard to check")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := logging.InitLogger(cfg.Log.Mode, cfg.Log.Level); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer logging.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		err = runMonitor(ctx, cfg)
	case "status":
		err = showStatus(ctx, cfg, *follow, stdout)
	case "check":
		err = checkOne(ctx, cfg, *id, stdout)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		logging.Logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		return 1
	}
	return 0
}

func newEngine(cfg *config.Config) (*core.Engine, error) {
	identities, err := fetch.NewIdentities(cfg.Fetch.UserAgents)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(cfg.Fetch,
		fetch.WithIdentities(identities),
		fetch.WithLogger(logging.Named("fetch")))
	dispatcher := notify.NewDispatcher(logging.Named("notify"),
		notify.NewEmail(cfg.Notify.Email),
		notify.NewTelegram(cfg.Notify.Telegram))

	return core.NewEngine(cfg,
		history.NewStore(cfg.StateFile, logging.Named("history")),
		fetcher,
		sources.NewRegistry(cfg.Sources),
		dispatcher,
		core.WithLogger(logging.Named("engine"))), nil
}

func runMonitor(ctx context.Context, cfg *config.Config) error {
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	return engine.Execute(ctx)
}

func checkOne(ctx context.Context, cfg *config.Config, id string, out io.Writer) error {
	if id == "" {
		return errors.New("check: -id is required")
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	res, err := engine.Check(ctx, id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "standard\t%s (%s)\n", res.StandardID, res.Category)
	fmt.Fprintf(w, "type\t%s (%s)\n", res.Type, res.Type.Kind())
	fmt.Fprintf(w, "target\t%s\n", res.Target)
	fmt.Fprintf(w, "outcome\t%s\n", res.Outcome)
	fmt.Fprintf(w, "stored\t%s\n", orDash(res.OldVersion))
	fmt.Fprintf(w, "extracted\t%s\n", orDash(res.NewVersion))
	fmt.Fprintf(w, "rung\t%s\n", orDash(res.Rung))
	if res.Err != nil {
		fmt.Fprintf(w, "error\t%v\n", res.Err)
	}
	return w.Flush()
}

func showStatus(ctx context.Context, cfg *config.Config, follow bool, out io.Writer) error {
	store := history.NewStore(cfg.StateFile, logging.Named("history"))
	snap, err := store.Load()
	if err != nil {
		return err
	}
	if err := printSnapshot(out, snap); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	watcher := history.NewWatcher(store, logging.Named("watch"))
	updates, err := watcher.Start()
	if err != nil {
		return err
	}
	defer watcher.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprintln(out)
			if err := printSnapshot(out, snap); err != nil {
				return err
			}
		}
	}
}

func printSnapshot(out io.Writer, snap *history.Snapshot) error {
	m := snap.Metadata
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "last run\t%s\n", orDash(m.LastRunTime))
	fmt.Fprintf(w, "status\t%s\n", orDash(string(m.Status)))
	fmt.Fprintf(w, "checked\t%d (errors %d, updates %d)\n", m.StandardsChecked, m.Errors, m.UpdatesDetected)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CATEGORY\tID\tTYPE\tVERSION\tLAST CHECKED")
	snap.Standards.Each(func(category string, s *standard.Standard) bool {
		last := ""
		if s.LastChecked != nil {
			last = *s.LastChecked
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", category, s.ID, s.Type, orDash(s.Version()), orDash(last))
		return true
	})
	if n := len(snap.UpdateHistory); n > 0 {
		latest := snap.UpdateHistory[0]
		fmt.Fprintf(w, "\nlatest change\t%s: %s -> %s at %s (%d recorded)\n",
			latest.StandardID, latest.OldVersion, latest.NewVersion, latest.DetectedAt, n)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
