package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/internal/shell"
	"github.com/hupe1980/offheap/resource"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".stats"),
	readline.PcItem(".reset"),
	readline.PcItem(".exit"),
	readline.PcItem("HT",
		readline.PcItem("PUT"),
		readline.PcItem("GET"),
		readline.PcItem("LEN"),
	),
	readline.PcItem("BT",
		readline.PcItem("PUT"),
		readline.PcItem("ADD"),
		readline.PcItem("GET"),
		readline.PcItem("SCAN"),
	),
	readline.PcItem("SYM",
		readline.PcItem("INTERN"),
		readline.PcItem("LOOKUP"),
		readline.PcItem("STRING"),
	),
	readline.PcItem("SM",
		readline.PcItem("PUT"),
		readline.PcItem("ADD"),
		readline.PcItem("GET"),
		readline.PcItem("ROW"),
		readline.PcItem("ROWS"),
	),
	readline.PcItem("LIST",
		readline.PcItem("NEW"),
		readline.PcItem("APPEND"),
		readline.PcItem("SHOW"),
	),
	readline.PcItem("FT",
		readline.PcItem("APPEND"),
		readline.PcItem("GET"),
		readline.PcItem("SET"),
	),
)

// Config holds the application configuration
type Config struct {
	PageSize    int
	MemoryLimit int64
	LogLevel    string
	JSONLogs    bool
}

func main() {
	config := parseFlags()

	level, err := parseLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	logger := offheap.NewTextLogger(level)
	if config.JSONLogs {
		logger = offheap.NewJSONLogger(level)
	}

	sh := shell.New(os.Stdout,
		offheap.WithPageSize(config.PageSize),
		offheap.WithLogger(logger),
		offheap.WithMemoryController(resource.NewController(resource.Config{
			MemoryLimitBytes: config.MemoryLimit,
		})),
	)
	defer sh.Close()

	runInteractive(sh)
}

// parseFlags parses command line flags and returns a Config
func parseFlags() Config {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "offheap - interactive shell over off-heap data structures\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: offheap [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprint(flag.CommandLine.Output(), shell.HelpText)
	}

	pageSize := flag.Int("page-size", offheap.DefaultPageSize, "Arena page size in bytes (rounded up to a power of two)")
	memLimit := flag.Int64("mem-limit", 0, "Memory limit in bytes for all arenas (0 = unlimited)")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn or error")
	jsonLogs := flag.Bool("json", false, "Emit JSON logs")

	flag.Parse()

	return Config{
		PageSize:    *pageSize,
		MemoryLimit: *memLimit,
		LogLevel:    *logLevel,
		JSONLogs:    *jsonLogs,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// runInteractive starts the interactive CLI mode
func runInteractive(sh *shell.Shell) {
	fmt.Println("offheap shell")
	fmt.Println("Enter .help for usage hints.")

	// Setup readline with history support
	historyFile := filepath.Join(os.TempDir(), ".offheap_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "offheap> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if errors.Is(readErr, readline.ErrInterrupt) {
				if len(line) == 0 {
					break
				}
				continue
			} else if errors.Is(readErr, io.EOF) {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, ".exit") {
			fmt.Println("Goodbye!")
			break
		}

		if err := sh.Exec(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
}
