// shmrepl is an interactive CLI for shmhash regions.
//
// Usage:
//
//	shmrepl <region-file>               Attach to an existing region
//	shmrepl new [opts] <region-file>    Create a new region and own it
//
// Options for 'new':
//
//	-m, --memory-size      Region size in bytes
//	-b, --max-buckets      Bucket table capacity (0 = derive from size)
//	-f, --max-free-blocks  Freelist capacity (0 = same as buckets)
//
// Commands (in REPL):
//
//	set <key> <value>   Insert or overwrite an entry
//	get <key>           Retrieve an entry by key
//	del <key>           Delete an entry
//	stat                Show region sizing and usage
//	bulk <count>        Insert N random entries
//	help                Show this help
//	exit / quit / q     Exit
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calvinalkan/shmhash/pkg/shmhash"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()

		return errors.New("missing command or region file path")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}

	return runAttach(os.Args[1])
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  shmrepl <region-file>               Attach to an existing region\n")
	fmt.Fprintf(os.Stderr, "  shmrepl new [opts] <region-file>    Create a new region\n")
	fmt.Fprintf(os.Stderr, "\nRun 'shmrepl new --help' for creation options.\n")
}

func runNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)

	memorySize := fs.Uint64P("memory-size", "m", 1<<20, "region size in bytes")
	maxBuckets := fs.Uint64P("max-buckets", "b", 0, "bucket table capacity (0 = derive)")
	maxFreeBlocks := fs.Uint64P("max-free-blocks", "f", 0, "freelist capacity (0 = same as buckets)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("new: exactly one region file path expected")
	}

	path := fs.Arg(0)

	m, err := shmhash.Init(shmhash.Options{
		Path:          path,
		MemorySize:    *memorySize,
		MaxBuckets:    *maxBuckets,
		MaxFreeBlocks: *maxFreeBlocks,
	})
	if err != nil {
		return fmt.Errorf("creating region %q: %w", path, err)
	}
	defer m.Destroy()

	r := &REPL{m: m, path: path, owns: true}

	return r.Run()
}

func runAttach(path string) error {
	m, err := shmhash.Attach(shmhash.Options{Path: path})
	if err != nil {
		return fmt.Errorf("attaching to region %q: %w", path, err)
	}
	defer m.Close()

	r := &REPL{m: m, path: path}

	return r.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	m     *shmhash.Map
	path  string
	owns  bool
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".shmrepl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	mode := "attached"
	if r.owns {
		mode = "owner"
	}

	fmt.Printf("shmrepl - %s (%s)\n", r.path, mode)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("shmrepl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			printHelp()

		case "set", "put":
			r.cmdSet(args)

		case "get":
			r.cmdGet(args)

		case "del", "delete":
			r.cmdDel(args)

		case "stat", "info":
			r.cmdStat()

		case "bulk":
			r.cmdBulk(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = r.liner.WriteHistory(f)
}

func completer(line string) []string {
	commands := []string{"set", "get", "del", "stat", "bulk", "help", "exit", "quit"}

	var matches []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			matches = append(matches, c)
		}
	}

	return matches
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  set <key> <value>   Insert or overwrite an entry")
	fmt.Println("  get <key>           Retrieve an entry by key")
	fmt.Println("  del <key>           Delete an entry")
	fmt.Println("  stat                Show region sizing and usage")
	fmt.Println("  bulk <count>        Insert N random entries")
	fmt.Println("  help                Show this help")
	fmt.Println("  exit / quit / q     Exit")
}

func (r *REPL) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: set <key> <value>")

		return
	}

	key := []byte(args[0])
	value := []byte(strings.Join(args[1:], " "))

	if err := r.m.Insert(key, value); err != nil {
		fmt.Printf("set failed: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")

		return
	}

	value, err := r.m.Search([]byte(args[0]))
	if err != nil {
		fmt.Printf("get failed: %v\n", err)

		return
	}

	if isPrintable(value) {
		fmt.Printf("%s (%d bytes)\n", value, len(value))
	} else {
		fmt.Printf("0x%s (%d bytes)\n", hex.EncodeToString(value), len(value))
	}
}

func (r *REPL) cmdDel(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")

		return
	}

	if err := r.m.Delete([]byte(args[0])); err != nil {
		fmt.Printf("del failed: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdStat() {
	st, err := r.m.Stat()
	if err != nil {
		fmt.Printf("stat failed: %v\n", err)

		return
	}

	fmt.Printf("memory_size:      %d\n", st.MemorySize)
	fmt.Printf("max_buckets:      %d\n", st.MaxBuckets)
	fmt.Printf("max_free_blocks:  %d\n", st.MaxFreeBlocks)
	fmt.Printf("used_buckets:     %d\n", st.UsedBuckets)
	fmt.Printf("used_free_blocks: %d\n", st.UsedFreeBlocks)
	fmt.Printf("used_data:        %d\n", st.UsedData)
	fmt.Printf("data_offset:      %d\n", st.DataOffset)
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: bulk <count>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		fmt.Println("bulk: count must be a positive integer")

		return
	}

	inserted := 0
	for i := 0; i < count; i++ {
		var buf [8]byte
		_, _ = rand.Read(buf[:])

		key := []byte("bulk-" + hex.EncodeToString(buf[:]))
		if err := r.m.Insert(key, buf[:]); err != nil {
			fmt.Printf("stopped after %d inserts: %v\n", inserted, err)

			return
		}

		inserted++
	}

	fmt.Printf("inserted %d entries\n", inserted)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}

	return len(b) > 0
}
