package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattjoyce/agentlive/internal/tui"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runPrompt(os.Args[2:])
	case "chat":
		err = runChat(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "usage":
		err = runUsage(os.Args[2:])
	case "version":
		fmt.Printf("agentlive %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	switch {
	case err == nil:
	case errors.Is(err, tui.ErrInterrupted):
		os.Exit(130)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: agentlive <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run       Answer one prompt with a live view")
	fmt.Fprintln(os.Stderr, "  chat      Interactive prompt loop")
	fmt.Fprintln(os.Stderr, "  serve     Start the HTTP service")
	fmt.Fprintln(os.Stderr, "  watch     Follow a service run in the live view")
	fmt.Fprintln(os.Stderr, "  usage     Print token usage recorded in the ledger")
	fmt.Fprintln(os.Stderr, "  version   Print version")
}
