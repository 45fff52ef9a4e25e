// Completion: 100% - demo CLI complete, drives the layout engine end to end
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/internal/engine"
	"github.com/xyproto/rewire/isa"
	"github.com/xyproto/rewire/isa/arm64"
	"github.com/xyproto/rewire/isa/riscv64"
	"github.com/xyproto/rewire/isa/x86_64"
	"github.com/xyproto/rewire/layout"
)

const versionString = "rewire-demo 0.1.0"

func main() {
	var (
		configPath   = flag.String("config", "", "path to a YAML LayoutStrategy config")
		blockSetPath = flag.String("blocks", "", "path to a JSON synthetic block set")
		showVersion  = flag.Bool("version", false, "print version and exit")
		quiet        = flag.Bool("quiet", false, "suppress the progress bar")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(versionString)
		return
	}

	if err := run(*configPath, *blockSetPath, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, "rewire-demo:", err)
		os.Exit(1)
	}
}

func run(configPath, blockSetPath string, quiet bool) error {
	if blockSetPath == "" {
		return fmt.Errorf("usage: rewire-demo -blocks <blockset.json> [-config <strategy.yaml>]")
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	cap, err := capabilityFor(cfg.Arch)
	if err != nil {
		return err
	}

	allocatorKind, err := cfg.allocatorKind()
	if err != nil {
		return err
	}
	orderKind, err := cfg.orderKind()
	if err != nil {
		return err
	}
	groupingStrategy, err := cfg.groupingStrategy()
	if err != nil {
		return err
	}
	trampolineStrategy, err := cfg.trampolineStrategy()
	if err != nil {
		return err
	}

	in, err := loadBlockSet(blockSetPath)
	if err != nil {
		return err
	}
	in.LayoutBase = address.NewConcrete(address.SpaceFreshRegion, cfg.LayoutBase)

	// The seed string's bytes fill the 32-byte RandomOrder seed; shorter
	// strings are zero-padded and longer ones truncated.
	var seed [32]byte
	copy(seed[:], cfg.Seed)

	strategy := layout.Strategy{
		Allocator:   allocatorKind,
		Order:       orderKind,
		Seed:        seed,
		Grouping:    groupingStrategy,
		Trampolines: trampolineStrategy,
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.Default(int64(len(in.Pairs)), "laying out blocks")
	}

	session := layout.NewSession(cfg.Verbose)
	result, err := layout.Run(session, cap, strategy, in)
	if err != nil {
		return fmt.Errorf("layout run %s: %w", session.ID, err)
	}
	if bar != nil {
		bar.Add(len(in.Pairs))
	}

	printReport(session, result)
	return nil
}

func capabilityFor(arch string) (isa.Capability, error) {
	a, err := engine.ParseArch(arch)
	if err != nil {
		return nil, err
	}
	switch a {
	case engine.ArchX86_64:
		return x86_64.New(), nil
	case engine.ArchARM64:
		return arm64.New(), nil
	case engine.ArchRiscv64:
		return riscv64.New(), nil
	default:
		return nil, fmt.Errorf("unsupported arch %q", arch)
	}
}

func printReport(session *layout.Session, result *layout.Layout) {
	fmt.Printf("session %s\n", session.ID)
	fmt.Printf("  program blocks : %d\n", len(result.ProgramBlockLayout))
	fmt.Printf("  padding blocks : %d\n", len(result.LayoutPaddingBlocks))
	fmt.Printf("  injected items : %d\n", len(result.InjectedBlockLayout))
	fmt.Printf("  reused bytes   : %d\n", result.ReusedBytes)
	for _, b := range result.ProgramBlockLayout {
		fmt.Printf("    %s -> %s (reserved %d)\n", b.OriginalAddr, b.Addr, b.Reserved)
	}
	for _, p := range result.LayoutPaddingBlocks {
		fmt.Printf("    padding @ %s (%d bytes)\n", p.Addr, p.Reserved)
	}
	for _, d := range session.Diagnostics {
		fmt.Printf("  note: %s\n", d)
	}
}
