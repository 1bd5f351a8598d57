// Command sandlibc is a developer harness for the libc shim: it lists the
// linkable export surface and runs the shim against a scripted workload so
// the call trace can be inspected. The shim itself has no CLI surface; this
// tool plays the embedding host.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	glog "github.com/bywater/sandlibc/internal/log"
	"github.com/bywater/sandlibc/internal/sandbox"
	"github.com/bywater/sandlibc/internal/shim"
	"github.com/bywater/sandlibc/internal/trace"
	"github.com/bywater/sandlibc/internal/ui/render"
)

var (
	verbose    bool
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandlibc",
		Short: "C standard-library shim for a freestanding sandbox",
		Long: `sandlibc implements the subset of libc that a sandboxed parser's
generated C code references, backed by a linear memory region and
host-granted capabilities instead of an operating system.

This tool is the embedding side: it instantiates a sandbox, links the
shim's export table, and exercises it.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			glog.Init(verbose)
			shim.Debug = verbose
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "sandbox config file (YAML)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "exports",
		Short: "List the linkable C symbols by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(render.ExportTable(shim.Symbols()))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "selftest",
		Short: "Instantiate a sandbox and exercise every shim component",
		RunE:  runSelftest,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (sandbox.Config, error) {
	if configPath == "" {
		return sandbox.DefaultConfig(), nil
	}
	return sandbox.LoadConfig(configPath)
}

// systemTime is the host's read-current-time capability.
type systemTime struct {
	start time.Time
}

func (t systemTime) WallSeconds() int64 { return time.Now().Unix() }

func (t systemTime) Ticks() int64 {
	return int64(time.Since(t.start) / (time.Second / shim.ClocksPerSec))
}

func runSelftest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mem, err := sandbox.NewMemory(cfg.Pages, cfg.MaxPages)
	if err != nil {
		return err
	}
	sink := sandbox.NewBufferSink()
	host := sandbox.Host{Sink: sink, Time: systemTime{start: time.Now()}}
	if cfg.FixedClock != nil {
		host.Time = sandbox.FixedTime{Seconds: cfg.FixedClock.Seconds, Clock: cfg.FixedClock.Ticks}
	}

	s, err := shim.New(mem, host, cfg)
	if err != nil {
		return err
	}
	collector := trace.NewCollector(s.Session())
	s.OnCall = collector.Record

	// Allocator: grow, resize, release.
	p := s.Malloc(64)
	if p == 0 {
		return fmt.Errorf("selftest: malloc failed")
	}
	if err := mem.WriteString(p, "  -42xyz"); err != nil {
		return err
	}
	p = s.Realloc(p, 256)

	// Numeric parsing with an end cursor.
	endPtr := s.Malloc(8)
	parsed := s.Strtol(p, endPtr, 10)

	// Formatting to a guest buffer, with the exact-length contract.
	fmtPtr := s.Malloc(64)
	if err := mem.WriteString(fmtPtr, "parsed %d (hex %x) upper %c"); err != nil {
		return err
	}
	buf := s.Malloc(64)
	n := s.Snprintf(buf, 64, fmtPtr, shim.Int(parsed), shim.Uint(uint64(parsed)&0xFFFF),
		shim.Char(byte(shim.ToUpper('q'))))
	rendered, _ := mem.ReadString(buf, 64)

	// Stream path: everything the guest prints lands in the host sink.
	msgFmt := s.Malloc(64)
	if err := mem.WriteString(msgFmt, "selftest: %s took %d ticks\n"); err != nil {
		return err
	}
	namePtr := s.Malloc(16)
	if err := mem.WriteString(namePtr, "shim"); err != nil {
		return err
	}
	s.Fprintf(s.Stderr(), msgFmt, shim.Str(namePtr), shim.Int(s.Clock()))
	s.Fflush(0)

	s.Free(buf)
	s.Free(fmtPtr)
	s.Free(p)

	fmt.Println(render.Events(collector.Events()))
	fmt.Printf("snprintf rendered %q (full length %d)\n", rendered, n)
	fmt.Printf("byte order: htobe32(0x11223344) = 0x%08x\n", shim.Htobe32(0x11223344))
	fmt.Printf("guest stderr: %q\n", sink.String(sandbox.StreamStderr))
	fmt.Printf("memory: %d pages in use, ceiling %d\n", mem.Pages(), mem.MaxPages())
	return nil
}
