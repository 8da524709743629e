//go:build linux

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/output"
	"github.com/zenchess/mudscan/internal/tui"
	"github.com/zenchess/mudscan/pkg/scanner"
)

var version = ""
var commit = ""
var buildDate = ""

func printHelp() {
	fmt.Println("Usage: mudscan [window] [--pid N] [--lines N] [-i] [--raw] [--json] [--list-windows] [--rescan] [--version-string] [--offsets FILE] [--cache FILE] [--no-color] [--help] [--version]")
	fmt.Println("  window            Window to read: shell, chat, badge, vitals (default shell)")
	fmt.Println("  -i, --interactive Interactive live watcher")
	fmt.Println("  --pid <n>         Attach to a specific PID instead of searching by name")
	fmt.Println("  --process <name>  Process name to search for (default hackmud)")
	fmt.Println("  --lines <n>       Number of recent lines to print, 0 for all (default 20)")
	fmt.Println("  --raw             Keep color markup tags in the output")
	fmt.Println("  --json            Output result as JSON")
	fmt.Println("  --list-windows    List discovered windows and their addresses")
	fmt.Println("  --rescan          Ignore the address cache and rescan memory")
	fmt.Println("  --version-string  Print the game's version string")
	fmt.Println("  --offsets <file>  Load structure offsets from a JSON file")
	fmt.Println("  --cache <file>    Address cache file, '-' to disable caching")
	fmt.Println("  --no-color        Disable colorized output")
	fmt.Println("  --help            Show this help message")
	fmt.Println("  --version         Show version and exit")
}

// Helper: which flags need a value (not bool flags)?
func flagNeedsValue(flag string) bool {
	switch flag {
	case "--pid", "-pid", "--lines", "-lines", "--process", "-process",
		"--offsets", "-offsets", "--cache", "-cache":
		return true
	}
	return false
}

func main() {
	// Sanity check: fail build if version is not injected
	if version == "" {
		fmt.Fprintln(os.Stderr, "ERROR: version not set. Use -ldflags '-X main.version=...' when building.")
		os.Exit(2)
	}
	versionFlag := flag.Bool("version", false, "show version and exit")

	// Reorder os.Args so all flags (with their values) come before positional arguments
	reordered := []string{os.Args[0]}
	var positionals []string
	i := 1
	for i < len(os.Args) {
		arg := os.Args[i]
		if len(arg) > 0 && arg[0] == '-' {
			reordered = append(reordered, arg)
			// If this flag takes a value (not a bool flag), keep the value with it
			if flagNeedsValue(arg) && i+1 < len(os.Args) && os.Args[i+1][0] != '-' {
				reordered = append(reordered, os.Args[i+1])
				i++
			}
		} else {
			positionals = append(positionals, arg)
		}
		i++
	}
	reordered = append(reordered, positionals...)
	os.Args = reordered

	pidFlag := flag.Int("pid", 0, "pid to attach to")
	processFlag := flag.String("process", "", "process name to search for")
	linesFlag := flag.Int("lines", 20, "number of recent lines, 0 for all")
	rawFlag := flag.Bool("raw", false, "keep color markup")
	jsonFlag := flag.Bool("json", false, "output as JSON")
	listFlag := flag.Bool("list-windows", false, "list discovered windows")
	rescanFlag := flag.Bool("rescan", false, "ignore the address cache")
	gameVersionFlag := flag.Bool("version-string", false, "print the game version string")
	offsetsFlag := flag.String("offsets", "", "structure offsets JSON file")
	cacheFlag := flag.String("cache", "", "address cache file, '-' to disable")
	noColorFlag := flag.Bool("no-color", false, "disable colorized output")
	helpFlag := flag.Bool("help", false, "show help")
	interactiveFlag := flag.Bool("i", false, "interactive mode")
	interactiveLongFlag := flag.Bool("interactive", false, "interactive mode")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("mudscan %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	// To embed version, commit, and build date, use:
	// go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X 'main.buildDate=$(date +%Y-%m-%d)'" -o mudscan ./cmd/mudscan
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	window := "shell"
	if len(flag.Args()) > 0 {
		window = flag.Args()[0]
	}

	cfg := scanner.Config{
		PID:         *pidFlag,
		ProcessName: *processFlag,
		CachePath:   *cacheFlag,
	}
	if *offsetsFlag != "" {
		table, err := layout.Load(*offsetsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Offsets = &table
	}

	debug := os.Getenv("MUDSCAN_DEBUG") != ""
	start := time.Now()

	s := scanner.New(cfg)
	if err := s.Connect(); err != nil {
		fail(err)
	}
	defer s.Close()
	if debug {
		fmt.Fprintf(os.Stderr, "debug: attached to pid %d in %s\n", s.PID(), time.Since(start))
	}

	if *rescanFlag {
		if err := s.Rescan(); err != nil {
			fail(err)
		}
		if debug {
			fmt.Fprintf(os.Stderr, "debug: rescan done in %s\n", time.Since(start))
		}
	}

	if *interactiveFlag || *interactiveLongFlag {
		if err := tui.Run(s, window, *linesFlag, time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := output.NewPrinter(os.Stdout)

	if *gameVersionFlag {
		v, err := s.Version()
		if err != nil {
			fail(err)
		}
		if *jsonFlag {
			printJSON(map[string]any{"pid": s.PID(), "version": v})
		} else {
			p.Println(v)
		}
		return
	}

	if *listFlag {
		anchors := s.Anchors()
		if *jsonFlag {
			out := make(map[string]string, len(anchors))
			for name, a := range anchors {
				out[name] = fmt.Sprintf("0x%x", a.Window)
			}
			printJSON(map[string]any{"pid": s.PID(), "windows": out})
			return
		}
		p.Printf("pid %d\n", s.PID())
		for _, name := range s.Windows() {
			if a, ok := anchors[name]; ok {
				p.Printf("  %-8s 0x%x\n", name, a.Window)
			} else {
				p.Printf("  %-8s (not found)\n", name)
			}
		}
		return
	}

	lines, err := s.ReadWindow(window, *linesFlag, *rawFlag)
	if err != nil {
		fail(err)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "debug: read %d lines from %q in %s\n", len(lines), window, time.Since(start))
	}

	if *jsonFlag {
		printJSON(map[string]any{"pid": s.PID(), "window": window, "lines": lines})
		return
	}
	header := fmt.Sprintf("%s (pid %d)", window, s.PID())
	if *noColorFlag {
		p.Println(header)
	} else {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(header))
	}
	for _, line := range lines {
		p.Println(line)
	}
}

func printJSON(v any) {
	enc, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(enc))
}

func fail(err error) {
	fmt.Println()
	fmt.Println("Error:")
	fmt.Printf("  %s\n", err.Error())
	if errors.Is(err, os.ErrPermission) || strings.Contains(err.Error(), "permission denied") {
		fmt.Println("\nReading another process's memory needs ptrace rights.")
		fmt.Println("Try running with sudo:")
		// Print the actual command the user entered, prefixed with sudo
		fmt.Print("  sudo ")
		for i, arg := range os.Args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(arg)
		}
		fmt.Println()
	} else if errors.Is(err, scanner.ErrProcessNotFound) {
		fmt.Println("\nNo running game process found. Is hackmud running?")
	}
	fmt.Println("For usage and options, run: mudscan --help")
	os.Exit(1)
}
