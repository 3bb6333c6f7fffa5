// Command teds decodes, encodes, acquires and serves IEEE 1451.4 TEDS.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `usage: teds <command> [flags]

commands:
  decode    decode a TEDS from hex, hardware words or a file
  encode    encode a JSON document to hex or a virtual TEDS file
  read      read a TEDS from serial acquisition hardware
  push      upload a TEDS file to a running server
  serve     run the HTTP API
  migrate   manage the sensor database schema (up, down, version)
  version   print build information

Run 'teds <command> -h' for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// env carries the process streams so commands can be driven from tests.
type env struct {
	in       io.Reader
	out, err io.Writer
}

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("teds "+name, flag.ContinueOnError)
	fs.SetOutput(e.err)
	return fs
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmds := map[string]func(*env, []string) error{
		"decode":  runDecode,
		"encode":  runEncode,
		"read":    runRead,
		"push":    runPush,
		"serve":   runServe,
		"migrate": runMigrate,
		"version": runVersion,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			fmt.Fprint(stdout, usage)
			return 0
		}
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	e := &env{in: stdin, out: stdout, err: stderr}
	if err := cmd(e, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "teds %s: %v\n", args[0], err)
		return 1
	}
	return 0
}
