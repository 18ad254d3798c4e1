// pyframe CLI - inspect stored traceback snapshots
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/chazu/pyframe/config"
	"github.com/chazu/pyframe/store"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pyframe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output")
	configDir := fs.String("config", ".", "Directory to search for pyframe.toml")
	limit := fs.Int("n", 20, "Maximum number of snapshots to list")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pyframe [options] <command> [args]\n\n")
		fmt.Fprintf(stderr, "Inspects traceback snapshots recorded by the runtime.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nCommands:\n")
		fmt.Fprintf(stderr, "  list          List stored snapshots, newest first\n")
		fmt.Fprintf(stderr, "  show ID       Print a snapshot as a traceback\n")
		fmt.Fprintf(stderr, "  delete ID     Remove a snapshot\n")
		fmt.Fprintf(stderr, "  demo          Record a sample snapshot\n")
		fmt.Fprintf(stderr, "  config        Print the effective configuration\n")
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  pyframe -n 5 list\n")
		fmt.Fprintf(stderr, "  PYFRAME_STORE=/tmp/tb.db pyframe show 3f2c...\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	verbosity := cfg.Log.Verbosity
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogFile())

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "config" {
		if err := cfg.Encode(stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	path, err := cfg.StorePath()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()
	if *verbose {
		fmt.Fprintf(stderr, "Store: %s\n", st.Path())
	}

	switch cmd {
	case "list":
		err = listSnapshots(st, *limit, stdout)
	case "show":
		err = withID(rest, func(id uuid.UUID) error { return showSnapshot(st, id, stdout) })
	case "delete":
		err = withID(rest, func(id uuid.UUID) error { return st.Delete(id) })
	case "demo":
		err = recordDemo(st, cfg, stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func withID(args []string, fn func(uuid.UUID) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one snapshot ID, got %d arguments", len(args))
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid snapshot ID %q: %w", args[0], err)
	}
	return fn(id)
}

func listSnapshots(st *store.Store, limit int, w io.Writer) error {
	entries, err := st.List(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return nil
	}
	for _, e := range entries {
		ts := time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339)
		line := e.ExcType
		if e.Message != "" {
			line += ": " + strconv.Quote(e.Message)
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n", e.ID, ts, e.Digest[:12], line)
	}
	return nil
}

func showSnapshot(st *store.Store, id uuid.UUID, w io.Writer) error {
	snap, err := st.Load(id)
	if err != nil {
		return err
	}
	fmt.Fprint(w, snap.Format())
	for i, f := range snap.Frames {
		names := snap.LocalNames(i)
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nLocals of %s (%s:%d):\n", f.Name, f.Filename, f.Line)
		for _, n := range names {
			fmt.Fprintf(w, "  %s = %s\n", n, f.Locals[n])
		}
	}
	return nil
}
