// Package command implements the Client Command Interpreter: parsing and
// dispatching the five interactive commands from spec.md §4.8.
package command

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samsamfire/fileapp/internal/render"
	"github.com/samsamfire/fileapp/pkg/client"
	"github.com/samsamfire/fileapp/pkg/transfer"
	log "github.com/sirupsen/logrus"
)

// requestDialTimeout bounds how long `request` waits to connect to an
// owner before reporting a transfer failure.
const requestDialTimeout = 5 * time.Second

// Interpreter parses and dispatches the Client's interactive command set
// against a running Runtime.
type Interpreter struct {
	rt  *client.Runtime
	out io.Writer
}

// New returns an Interpreter writing its output to stdout.
func New(rt *client.Runtime) *Interpreter {
	return &Interpreter{rt: rt, out: os.Stdout}
}

// Run is T-CMD: it reads lines from r until EOF or an `exit`/`dereg`
// ack-timeout terminates the process, dispatching each to Dispatch.
func (in *Interpreter) Run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if in.Dispatch(scanner.Text()) {
			return
		}
	}
}

// Dispatch parses and executes one command line. It returns true if the
// Client should now shut down (the `exit` command).
func (in *Interpreter) Dispatch(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "setdir":
		in.setdir(args)
	case "offer":
		in.offer(args)
	case "list":
		in.list()
	case "request":
		in.request(args)
	case "dereg":
		in.dereg(args)
	case "exit":
		return true
	default:
		fmt.Fprintf(in.out, "unknown command: %s\n", cmd)
	}
	return false
}

// gated reports whether a command other than `list` must be rejected
// because the Client has already deregistered, per spec.md §4.8.
func (in *Interpreter) gated() bool {
	if in.rt.Deregistered() {
		fmt.Fprintln(in.out, ">>> [You are offline; only 'list' is available.]")
		return true
	}
	return false
}

func (in *Interpreter) setdir(args []string) {
	if in.gated() {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(in.out, "usage: setdir <dir>")
		return
	}
	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(in.out, "< %s is not a directory >\n", dir)
		return
	}
	in.rt.SetDir(dir)
}

func (in *Interpreter) offer(args []string) {
	if in.gated() {
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(in.out, "usage: offer <file> [file...]")
		return
	}
	dir, set := in.rt.Dir()
	if !set {
		fmt.Fprintln(in.out, "< setdir must be called before offer >")
		return
	}
	for _, f := range args {
		info, err := os.Stat(filepath.Join(dir, f))
		if err != nil || !info.Mode().IsRegular() {
			fmt.Fprintf(in.out, "< %s is not a readable file in %s >\n", f, dir)
			return
		}
	}
	if err := in.rt.SendOffer(args); err != nil {
		log.Warnf("[command] offer ack timed out: %v", err)
		fmt.Fprintln(in.out, ">>> [No ACK from Server, please try again later.]")
		return
	}
	fmt.Fprintln(in.out, ">>> [Offer Message received by Server.]")
}

func (in *Interpreter) list() {
	v := in.rt.View()
	rows := make([]render.Row, 0, len(v))
	for key := range v {
		ip, port, ok := v.Entry(key)
		if !ok {
			continue
		}
		filename, owner, ok := splitKey(key)
		if !ok {
			continue
		}
		rows = append(rows, render.Row{Filename: filename, Owner: owner, IP: ip, TCPPort: port})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Filename != rows[j].Filename {
			return rows[i].Filename < rows[j].Filename
		}
		return rows[i].Owner < rows[j].Owner
	})
	render.Table(in.out, rows)
}

func splitKey(key string) (filename, owner string, ok bool) {
	idx := strings.LastIndex(key, ",")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

func (in *Interpreter) request(args []string) {
	if in.gated() {
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(in.out, "usage: request <file> <owner>")
		return
	}
	filename, owner := args[0], args[1]

	loc, err := transfer.Lookup(in.rt.View(), filename, owner, in.rt.Name)
	if err != nil {
		fmt.Fprintln(in.out, "< Invalid Request >")
		return
	}

	if err := transfer.Request(loc, filename, owner, in.rt.Name, ".", requestDialTimeout); err != nil {
		log.Warnf("[command] transfer of %s from %s failed: %v", filename, owner, err)
		fmt.Fprintf(in.out, "< Failed to download %s >\n", filename)
		return
	}
}

func (in *Interpreter) dereg(args []string) {
	if in.rt.Deregistered() {
		fmt.Fprintln(in.out, ">>> [You are offline; only 'list' is available.]")
		return
	}
	if len(args) != 1 || args[0] != in.rt.Name {
		fmt.Fprintln(in.out, "< Invalid Request >")
		return
	}

	in.rt.CloseTCPListener()
	if err := in.rt.SendDeregister(); err != nil {
		log.Errorf("[command] dereg ack timed out: %v", err)
		fmt.Fprintln(in.out, ">>> [No ACK from Server, please try again later.]")
		in.rt.Close()
		os.Exit(1)
	}
	fmt.Fprintln(in.out, ">>> [You are now Offline. Bye.]")
}
