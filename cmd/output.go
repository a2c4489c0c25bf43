package cmd

import (
	"fmt"
	"os"
)

// ── Output helpers ───────────────────────────────────────────────────────────
// Every command prints through these so icons and indentation stay uniform.
//
//   ✓  success / healthy
//   ✗  error / failure          (written to stderr)
//   ⚠  warning
//   ○  skipped / unchanged
//   -  not found
//   ~  neutral info

// printSection prints a top-level section header, e.g. "=== Index status ===".
func printSection(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

// printLine renders "  <icon>  msg" or "  <icon>  [name] msg".
func printLine(w *os.File, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
		return
	}
	fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
}

func printOK(name, msg string)   { printLine(os.Stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(os.Stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(os.Stdout, "⚠", name, msg) }
func printSkip(name, msg string) { printLine(os.Stdout, "○", name, msg) }
func printMiss(name, msg string) { printLine(os.Stdout, "-", name, msg) }
func printInfo(name, msg string) { printLine(os.Stdout, "~", name, msg) }
