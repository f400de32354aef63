// Command treestore is a thin example binary over the treestore package:
// it opens the database at <path> and runs one of put/get/del <table> <key>
// [value], scan <table> [start] or stats. It exists to exercise the library from the command line, not as a
// specified surface in its own right.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/nainya/treestore"
	"github.com/nainya/treestore/internal/logger"
)

func main() {
	pretty := flag.Bool("pretty", true, "console-format logs")
	level := flag.String("level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	log := logger.New(logger.Config{Level: *level, Pretty: *pretty})
	path := args[0]
	cmd := args[1]
	rest := args[2:]

	db, err := treestore.Open(path, treestore.Options{Logger: log})
	if err != nil {
		fmt.Fprintln(os.Stderr, "treestore: open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := dispatch(db, cmd, rest); err != nil {
		fmt.Fprintln(os.Stderr, "treestore:", err)
		os.Exit(1)
	}
}

func dispatch(db *treestore.DB, cmd string, args []string) error {
	switch cmd {
	case "put":
		if len(args) != 3 {
			return fmt.Errorf("usage: put <table> <key> <value>")
		}
		table, err := parseTable(args[0])
		if err != nil {
			return err
		}
		_, err = db.Insert(table, []byte(args[1]), []byte(args[2]))
		return err

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: get <table> <key>")
		}
		table, err := parseTable(args[0])
		if err != nil {
			return err
		}
		val, ok, err := db.Retrieve(table, []byte(args[1]))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(not found)")
			return nil
		}
		fmt.Println(string(val.Bytes()))
		return nil

	case "del":
		if len(args) != 2 {
			return fmt.Errorf("usage: del <table> <key>")
		}
		table, err := parseTable(args[0])
		if err != nil {
			return err
		}
		_, ok, err := db.Remove(table, []byte(args[1]))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(not found)")
		}
		return nil

	case "scan":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: scan <table> [start]")
		}
		table, err := parseTable(args[0])
		if err != nil {
			return err
		}
		var start []byte
		if len(args) == 2 {
			start = []byte(args[1])
		}
		it, err := db.NewIterator(table, start, true)
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Valid() {
			fmt.Printf("%s = %s\n", it.Key(), it.Value().Bytes())
			it.Next()
		}
		return nil

	case "stats":
		fmt.Println("(metrics not registered; see DB.EnableMetrics)")
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseTable(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid table id %q: %w", s, err)
	}
	return uint32(n), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: treestore [-level=info] [-pretty] <path> <put|get|del|scan|stats> [args...]")
}
