// Command dedupfs mounts a deduplicating, content-addressed filesystem at
// a given mountpoint, backed by a store.Store rooted at a given directory,
// in the spirit of restic's cmd/restic binary: a cobra root command with
// subcommands layered on top of shared global state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	systemFuse "github.com/anacrolix/fuse"
	"github.com/anacrolix/fuse/fs"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/MasterSpider-beep/licentaDedup/internal/config"
	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
	dedupfuse "github.com/MasterSpider-beep/licentaDedup/internal/fuse"
	"github.com/MasterSpider-beep/licentaDedup/internal/gc"
	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

func init() {
	// silence the library's own startup log line, matching restic's own
	// init() in cmd/restic/main.go
	_, _ = maxprocs.Set()
}

var mountOptions = config.DefaultMountOptions()

var cmdRoot = &cobra.Command{
	Use:           "dedupfs mountpoint rootpoint",
	Short:         "Mount a deduplicating content-addressed filesystem",
	Args:          cobra.ExactArgs(2),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(cmd.Context(), mountOptions, args[0], args[1])
	},
}

var cmdMount = &cobra.Command{
	Use:   "mount mountpoint rootpoint",
	Short: "Mount rootpoint's dedup store at mountpoint",
	Long: `
The "mount" command mounts a deduplicating filesystem via FUSE. rootpoint is
a directory on the host filesystem that holds the .dedup_store/ state;
mountpoint is where the logical, deduplicated view is exposed.
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(cmd.Context(), mountOptions, args[0], args[1])
	},
}

var cmdCheck = &cobra.Command{
	Use:   "check rootpoint",
	Short: "Verify every indexed chunk's bytes hash to its own digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	mountOptions.AddFlags(cmdRoot.Flags())
	mountOptions.AddFlags(cmdMount.Flags())
	cmdRoot.AddCommand(cmdMount, cmdCheck)
}

func main() {
	if err := cmdRoot.ExecuteContext(context.Background()); err != nil {
		if _, ok := err.(errors.Fatal); ok {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func runMount(ctx context.Context, opts config.MountOptions, mountpoint, rootpoint string) error {
	if _, err := os.Stat(mountpoint); os.IsNotExist(err) {
		return errors.Fatalf("mountpoint %s does not exist", mountpoint)
	}

	debug.Log("main", "opening store at %s", rootpoint)
	s, err := store.Open(rootpoint, opts.DigestWorkers)
	if err != nil {
		return err
	}
	defer s.Close()

	gcCtx, cancelGC := context.WithCancel(ctx)
	defer cancelGC()
	collector := gc.New(s, opts.GCWorkers)
	go collector.Run(gcCtx, opts.GCInterval)

	mountFlags := []systemFuse.MountOption{
		systemFuse.FSName(dedupfuse.MountName()),
	}
	if opts.AllowOther {
		mountFlags = append(mountFlags, systemFuse.AllowOther())
		if !opts.NoDefaultPermissions {
			mountFlags = append(mountFlags, systemFuse.DefaultPermissions())
		}
	}

	systemFuse.Debug = func(msg interface{}) {
		debug.Log("fuse", "%v", msg)
	}

	c, err := systemFuse.Mount(mountpoint, mountFlags...)
	if err != nil {
		return errors.Wrap(err, "mounting")
	}
	defer c.Close()

	fmt.Printf("serving %s at %s\n", rootpoint, mountpoint)
	fmt.Println("unmount with: fusermount -u " + mountpoint + " (or Ctrl-C here)")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() {
		served <- fs.Serve(c, dedupfuse.New(s))
	}()

	select {
	case <-sigCtx.Done():
		debug.Log("main", "unmounting %s", mountpoint)
		if err := systemFuse.Unmount(mountpoint); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unmount failed (maybe already unmounted): %v\n", err)
		}
		return nil
	case err := <-served:
		return err
	}
}

func runCheck(rootpoint string) error {
	s, err := store.Open(rootpoint, config.DefaultMountOptions().DigestWorkers)
	if err != nil {
		return err
	}
	defer s.Close()

	mismatches := s.Verify()
	if len(mismatches) == 0 {
		fmt.Println("ok: every indexed chunk's bytes hash to its own digest")
		return nil
	}

	for _, m := range mismatches {
		fmt.Printf("mismatch: digest=%s container=%s offset=%d length=%d err=%v\n",
			m.Digest, m.Container, m.Offset, m.Length, m.Err)
	}
	return errors.Fatalf("%d chunk integrity mismatches found", len(mismatches))
}
