// sep CLI - canonicalize signatures, inspect provider manifests, and stress
// the callable publication protocol.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/intern"
	"github.com/dagss/sep/manifest"
	"github.com/dagss/sep/reclaim"
	"github.com/dagss/sep/signature"
	"github.com/dagss/sep/typeslot"
	"github.com/dagss/sep/wire"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = errors only, 4 = debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sep [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  canon <signature>...   Print the canonical form and key of each signature\n")
		fmt.Fprintf(os.Stderr, "  inspect [dir]          Build the sep.toml provider in dir and dump its types\n")
		fmt.Fprintf(os.Stderr, "  stress                 Run concurrent lookups against table replacement\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sep canon 'double, double -> double'\n")
		fmt.Fprintf(os.Stderr, "  sep -v 3 inspect ./provider\n")
		fmt.Fprintf(os.Stderr, "  sep stress -readers 16 -replacements 10000\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "canon":
		err = runCanon(args[1:])
	case "inspect":
		err = runInspect(args[1:])
	case "stress":
		err = runStress(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// canon
// ---------------------------------------------------------------------------

func runCanon(args []string) error {
	fs := flag.NewFlagSet("canon", flag.ExitOnError)
	check := fs.Bool("check", false, "Only validate; fail if an argument is not already canonical")
	fs.Parse(args)

	failed := 0
	for _, text := range fs.Args() {
		if *check {
			if err := signature.Validate(text); err != nil {
				fmt.Printf("%-24s %v\n", text, err)
				failed++
				continue
			}
			fmt.Printf("%-24s ok\n", text)
			continue
		}
		canon, err := signature.Canonicalize(text)
		if err != nil {
			fmt.Printf("%-24q %v\n", text, err)
			failed++
			continue
		}
		fmt.Printf("%-24s %016x  %q\n", canon, signature.Key(canon), text)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d signatures rejected", failed, fs.NArg())
	}
	return nil
}

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

// builtinSymbols are the Go functions a manifest inspected from the command
// line may bind callables to.
var builtinSymbols = manifest.Symbols{
	"sin":   math.Sin,
	"cos":   math.Cos,
	"sqrt":  math.Sqrt,
	"exp":   math.Exp,
	"log":   math.Log,
	"abs":   math.Abs,
	"hypot": math.Hypot,
	"neg":   func(x int32) int32 { return -x },
	"negq":  func(x int64) int64 { return -x },
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	asCBOR := fs.Bool("cbor", false, "Dump each type as hex-encoded canonical CBOR")
	fs.Parse(args)

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no %s found in %s or its parents", manifest.FileName, dir)
	}

	p, err := manifest.Build(m, manifest.Env{Symbols: builtinSymbols})
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("provider %s (%s)\n", m.Provider.Name, m.Path)
	for _, t := range p.Types {
		snap := wire.SnapshotType(t)
		fp, err := wire.Fingerprint(snap)
		if err != nil {
			return err
		}

		if *asCBOR {
			data, err := wire.MarshalType(snap)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", t.FullName(), hex.EncodeToString(data))
			continue
		}

		fmt.Printf("\n%s", t.FullName())
		if snap.Base != "" {
			fmt.Printf(" < %s", snap.Base)
		}
		fmt.Printf("  [%x]\n", fp[:8])
		for i, e := range typeslot.TableOf(t).Entries() {
			fmt.Printf("  slot %d  %v\n", i, e)
		}
		for _, c := range snap.Callables {
			fmt.Printf("  call    %-16s %v\n", c.Signature, callable.Flags(c.Flags))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// stress
// ---------------------------------------------------------------------------

func runStress(args []string) error {
	fs := flag.NewFlagSet("stress", flag.ExitOnError)
	readers := fs.Int("readers", 8, "Number of concurrent reader goroutines")
	replacements := fs.Int("replacements", 1000, "Number of table replacements")
	interval := fs.Duration("interval", reclaim.DefaultInterval, "Background collection interval")
	fs.Parse(args)

	reg := intern.NewRegistry()
	domain := reclaim.NewDomain()
	reclaimer := reclaim.NewReclaimer(domain, *interval)
	reclaimer.Start()

	double := func(x float64) float64 { return 2 * x }
	triple := func(x float64) float64 { return 3 * x }
	tables := [2][]callable.Spec{
		{callable.MustGoFunc("d:d", 0, double), callable.MustGoFunc("i:i", 0, func(x int32) int32 { return x })},
		{callable.MustGoFunc("f:f", 0, func(x float32) float32 { return x }), callable.MustGoFunc("d:d", 0, triple)},
	}

	cell := callable.NewCell(domain)
	if err := cell.Replace(callable.MustTable(reg, tables[0]...)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	var lookups atomic.Int64
	start := time.Now()

	for i := 0; i < *readers; i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				snap := cell.Snapshot()
				e, ok := snap.Table.Lookup("d:d")
				_, hasI := snap.Table.Lookup("i:i")
				_, hasF := snap.Table.Lookup("f:f")
				var got float64
				if ok {
					got = callable.As[func(float64) float64](e)(1)
				}
				snap.Release()

				switch {
				case ok && hasI && !hasF && got == 2:
				case ok && hasF && !hasI && got == 3:
				default:
					return fmt.Errorf("inconsistent table: d:d=%t i:i=%t f:f=%t result=%v", ok, hasI, hasF, got)
				}
				lookups.Add(1)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		for i := 1; i <= *replacements && ctx.Err() == nil; i++ {
			table, err := callable.NewTable(reg, tables[i%2]...)
			if err != nil {
				return err
			}
			if err := cell.Replace(table); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	reclaimer.Stop()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Printf("%d lookups, %d replacements in %s\n", lookups.Load(), *replacements, elapsed.Round(time.Millisecond))
	fmt.Printf("reclaimed %d tables in %d grace periods, %d pending, %d live strings\n",
		domain.Reclaimed(), domain.GracePeriods(), domain.Pending(), reg.Len())
	return nil
}
