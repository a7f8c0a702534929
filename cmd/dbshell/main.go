// Package main implements the interactive REPL front-end for the
// storage engine.
//
// EDUCATIONAL NOTES:
// ------------------
// This is the entry point for the database CLI. It provides:
// 1. A REPL (Read-Eval-Print Loop) for interactive SQL queries
// 2. Command-line flags for configuration
// 3. Dot-commands for local inspection (.tables, .schema, .quit)
// 4. Persistence of data across restarts via the catalog system
//
// The REPL pattern is common in interactive tools:
// - Read: Get input from user
// - Eval: Parse and execute the input
// - Print: Display the result
// - Loop: Repeat until user exits
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cabewaldrop/pagestore/internal/catalog"
	"github.com/cabewaldrop/pagestore/internal/sql/executor"
	"github.com/cabewaldrop/pagestore/internal/sql/lexer"
	"github.com/cabewaldrop/pagestore/internal/sql/parser"
	"github.com/cabewaldrop/pagestore/internal/storage"
)

const (
	version = "0.1.0"
	banner  = `
  _____              _____ _
 |  __ \            / ____| |
 | |__) |_ _  __ _  | (___ | |_ ___  _ __ ___
 |  ___/ _' |/ _' |  \___ \| __/ _ \| '__/ _ \
 | |  | (_| | (_| |  ____) | || (_) | | |  __/
 |_|   \__,_|\__, | |_____/ \__\___/|_|  \___|
              __/ |
             |___/
  A single-file embedded relational store - version %s
  Type '.help' for usage hints or '.quit' to exit.
`
)

var dotCommands = map[string]string{
	".help":   "Show this help message",
	".quit":   "Exit the program",
	".exit":   "Exit the program (alias for .quit)",
	".tables": "List all tables",
	".schema": "Show schema for all tables or a specific table",
	".clear":  "Clear the screen",
}

func main() {
	dbPath := flag.String("db", "store.db1", "Path to database file")
	cacheCapacity := flag.Int("cache", storage.DefaultCacheCapacity, "Buffer cache capacity, in pages")
	pageCeiling := flag.Int("page-ceiling", storage.DefaultPageCeiling, "Page-size ceiling, in bytes")
	verbose := flag.Bool("verbose", false, "Log at debug level instead of info")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dbshell version %s\n", version)
		return
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	fmt.Printf(banner, version)

	ps, err := storage.Open(*dbPath,
		storage.WithCacheCapacity(*cacheCapacity),
		storage.WithPageCeiling(*pageCeiling),
		storage.WithLogger(log),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		os.Exit(1)
	}
	defer ps.Close()

	cat, err := catalog.Open(ps)
	if err != nil {
		log.Error().Err(err).Msg("failed to rehydrate catalog")
		os.Exit(1)
	}

	exec := executor.New(ps, cat)

	tables := cat.ListTables()
	if len(tables) > 0 {
		fmt.Printf("Loaded %d table(s): %s\n\n", len(tables), strings.Join(tables, ", "))
	}

	repl(exec, log)
}

// repl implements the Read-Eval-Print Loop. Statements accumulate until
// a trailing ';', matching the bare-FLUSH exception in the grammar.
func repl(exec *executor.Executor, log zerolog.Logger) {
	reader := bufio.NewReader(os.Stdin)
	var inputBuffer strings.Builder

	for {
		if inputBuffer.Len() == 0 {
			fmt.Print("dbshell> ")
		} else {
			fmt.Print("     ...> ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			exec.Flush()
			log.Info().Msg("closing on EOF")
			fmt.Println("\nGoodbye!")
			return
		}

		line = strings.TrimRight(line, "\n\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(line), ".") {
			if handleDotCommand(strings.TrimSpace(line), exec, log) {
				return
			}
			continue
		}

		inputBuffer.WriteString(line)
		input := strings.TrimSpace(inputBuffer.String())

		if strings.EqualFold(input, "FLUSH") {
			inputBuffer.Reset()
			executeSQL(input, exec, log)
			continue
		}
		if !strings.HasSuffix(input, ";") {
			inputBuffer.WriteString(" ")
			continue
		}

		input = strings.TrimSuffix(input, ";")
		inputBuffer.Reset()
		executeSQL(input, exec, log)
	}
}

// handleDotCommand processes a local inspection command. Returns true
// if the REPL should exit.
func handleDotCommand(cmd string, exec *executor.Executor, log zerolog.Logger) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case ".help":
		fmt.Println("\nAvailable commands:")
		for cmd, desc := range dotCommands {
			fmt.Printf("  %-12s %s\n", cmd, desc)
		}
		fmt.Println("\nSQL Commands:")
		fmt.Println("  CREATE TABLE name (column INT|STRING, ...)")
		fmt.Println("  INSERT INTO name VALUES (value, ...), ...")
		fmt.Println("  SELECT col, ... FROM name [WHERE col EQUALS value]")
		fmt.Println("  FLUSH")
		fmt.Println()

	case ".quit", ".exit":
		exec.Flush()
		log.Info().Msg("closing on .quit")
		fmt.Println("Goodbye!")
		return true

	case ".tables":
		tables := exec.Catalog().ListTables()
		if len(tables) == 0 {
			fmt.Println("No tables found.")
		} else {
			fmt.Println("Tables:")
			for _, name := range tables {
				fmt.Printf("  %s\n", name)
			}
		}

	case ".schema":
		if len(parts) > 1 {
			showTableSchema(parts[1], exec)
		} else {
			for _, name := range exec.Catalog().ListTables() {
				showTableSchema(name, exec)
			}
		}

	case ".clear":
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Printf("Unknown command: %s\n", parts[0])
		fmt.Println("Type '.help' for available commands.")
	}
	return false
}

// showTableSchema prints a table's column names and types.
func showTableSchema(name string, exec *executor.Executor) {
	tbl, ok := exec.Catalog().Tables[name]
	if !ok {
		fmt.Printf("Table '%s' not found.\n", name)
		return
	}

	fmt.Printf("CREATE TABLE %s (\n", name)
	for i, colName := range tbl.Schema.Names {
		comma := ","
		if i == len(tbl.Schema.Names)-1 {
			comma = ""
		}
		fmt.Printf("  %s %s%s\n", colName, tbl.Schema.Fields[i], comma)
	}
	fmt.Println(");")
}

// executeSQL lexes, parses, and runs one statement, logging the attempt
// at debug level per the CLI's structured-logging requirement.
func executeSQL(input string, exec *executor.Executor, log zerolog.Logger) {
	log.Debug().Str("sql", input).Msg("executing statement")

	lex := lexer.New(input)
	p := parser.New(lex)
	stmt, err := p.Parse()
	if err != nil {
		fmt.Printf("Parse error: %v\n", err)
		return
	}

	result, err := exec.Execute(stmt)
	if err != nil {
		log.Error().Err(err).Str("sql", input).Msg("execution failed")
		fmt.Printf("Execution error: %v\n", err)
		return
	}

	fmt.Print(result.String())

	if _, ok := stmt.(*parser.FlushStatement); ok {
		log.Info().Msg("flush complete")
	}
	if err := exec.Flush(); err != nil {
		log.Error().Err(err).Msg("flush after statement failed")
		fmt.Printf("Flush error: %v\n", err)
	}
}
