package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"miros/rtos/kernel"
)

func main() {
	var (
		words = flag.Int("words", 40, "Stack size in words.")
		entry = flag.String("entry", "0x00000201", "Entry address written to the PC slot.")
		cOut  = flag.Bool("c", false, "Print a C array initializer instead of a table.")
	)
	flag.Parse()

	addr, err := strconv.ParseUint(*entry, 0, 64)
	if err != nil {
		fatalf("bad -entry %q: %v", *entry, err)
	}
	if *words <= 0 {
		fatalf("usage: mkframe -words N -entry 0xADDR [-c]")
	}

	if err := dump(os.Stdout, *words, uintptr(addr), *cOut); err != nil {
		fatalf("mkframe: %v", err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

// frameRoles names the fabricated frame from the saved stack pointer upward.
var frameRoles = [kernel.FrameWords]string{
	"R4", "R5", "R6", "R7", "R8", "R9", "R10", "R11",
	"R0", "R1", "R2", "R3", "R12", "LR", "PC", "xPSR",
}

func dump(w io.Writer, words int, entry uintptr, cStyle bool) error {
	stack := make(kernel.Stack, words)
	sp, limit, ok := kernel.FabricateFrame(stack, entry)
	if !ok {
		return fmt.Errorf("a %d-word stack cannot hold a %d-word frame", words, kernel.FrameWords)
	}

	base := stack.Base()
	wsz := (stack.End() - base) / uintptr(len(stack))
	index := func(addr uintptr) int { return int((addr - base) / wsz) }
	spIdx, limitIdx := index(sp), index(limit)

	role := func(i int) string {
		switch {
		case i < limitIdx:
			return "below limit"
		case i < spIdx:
			return "poison"
		case i < spIdx+kernel.FrameWords:
			return frameRoles[i-spIdx]
		default:
			return "alignment pad"
		}
	}

	if cStyle {
		fmt.Fprintf(w, "uint32_t stack[%d] = {\n", words)
		for i, v := range stack {
			fmt.Fprintf(w, "    [%d] = 0x%08XU, /* %s */\n", i, uint32(v), role(i))
		}
		fmt.Fprintf(w, "};\n/* sp = &stack[%d] */\n", spIdx)
	} else {
		fmt.Fprintf(w, "%-6s %-10s %s\n", "word", "value", "role")
		for i := len(stack) - 1; i >= 0; i-- {
			marker := ""
			if i == spIdx {
				marker = " <- sp"
			}
			fmt.Fprintf(w, "%-6d 0x%08X %s%s\n", i, uint32(stack[i]), role(i), marker)
		}
	}

	_, err := fmt.Fprintf(w, "stack free: %d words\n", spIdx-limitIdx)
	return err
}
