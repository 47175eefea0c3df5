// Command vr4300vm runs a VR4300 program image under either the
// functional interpreter ("cen64" mode) or the pipelined cycle-accurate
// core ("cmips" mode). Flag parsing, the raw-mode console thread
// and the signal/done-channel shutdown shape are grounded on the
// teacher's cmd/mipsvm/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vr4300vm/internal/bus"
	"vr4300vm/internal/cp0"
	"vr4300vm/internal/device/uart"
	"vr4300vm/internal/interp"
	"vr4300vm/internal/pipeline"
	"vr4300vm/internal/srec"
	"vr4300vm/internal/tlb"
	"vr4300vm/internal/vm"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"
)

const uartBase = 0x1F800000

func main() {
	verbose := flag.Bool("v", false, "enable verbose logging")
	memoryFlag := flag.Uint64("memory", 8<<20, "memory size in bytes (max 4294967295)")
	step := flag.Bool("step", false, "single-step: check for cancellation after every step instead of every batch")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s image.srec <cen64|cmips>\n", os.Args[0])
		os.Exit(1)
	}
	imagePath, mode := args[0], args[1]
	if mode != "cen64" && mode != "cmips" {
		fmt.Fprintf(os.Stderr, "unknown mode %q: want cen64 (functional) or cmips (pipelined)\n", mode)
		os.Exit(1)
	}

	if *memoryFlag > uint64(math.MaxUint32) {
		log.Fatalf("memory size %d exceeds max uint32 %d", *memoryFlag, math.MaxUint32)
	}

	printIfVerbose(*verbose, "Allocating %d bytes of memory...", *memoryFlag)
	b := bus.New(uint32(*memoryFlag))
	b.Verbose = *verbose

	console := uart.New(os.Stdout)
	if err := b.Map(uartBase, 0x1000, console); err != nil {
		log.Fatalf("mapping console UART: %v", err)
	}

	f, err := os.Open(imagePath)
	if err != nil {
		log.Fatalf("opening %s: %v", imagePath, err)
	}
	entry, err := srec.Load(f, b.Mem)
	f.Close()
	if err != nil {
		log.Fatalf("loading %s: %v", imagePath, err)
	}
	printIfVerbose(*verbose, "Loaded %s, entry %#x", imagePath, entry)

	t := &tlb.TLB{}
	c0 := cp0.New(tlb.NumEntries())

	var core vm.Core
	switch mode {
	case "cen64":
		i := interp.New(b, t, c0)
		core = vm.WrapFunctional(i)
	case "cmips":
		p := pipeline.New(b, t, c0)
		core = vm.WrapPipeline(p)
	}
	v := vm.New(mode, core)
	if *step {
		v.BatchSize = 1
	}

	if err := keyboard.Open(); err == nil {
		defer keyboard.Close()
		go feedConsole(console)
	} else if *verbose {
		log.Printf("keyboard input unavailable: %v", err)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	printIfVerbose(*verbose, "Running %s...", mode)
	start := time.Now()

	go func() {
		v.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		printIfVerbose(*verbose, "Signal received, stopping...")
		cancel()
		v.Stop()
		<-done
	case <-done:
	}

	elapsed := time.Since(start)
	printIfVerbose(*verbose, "Stopped after %d steps in %s", v.Steps(), elapsed)
}

// feedConsole forwards host keypresses into the UART's receive queue,
// the same role a keyboard.GetSingleKey poll plays for a KBSR/KBDR
// register pair, except driven from its own goroutine instead of being
// called inline from a memory read.
func feedConsole(console *uart.Device) {
	for {
		ch, key, err := keyboard.GetKey()
		if err != nil {
			return
		}
		if key == keyboard.KeyCtrlC {
			return
		}
		console.RecieveChar(byte(ch))
	}
}

func printIfVerbose(verbose bool, format string, v ...interface{}) {
	if verbose {
		log.Printf(format, v...)
	}
}
