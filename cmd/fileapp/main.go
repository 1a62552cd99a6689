// Command fileapp runs either the Server or a Client of the file-sharing
// network, selected by the -s/-c flags, per spec.md §6. The Client form
// takes five positional values after -c, which the stdlib flag package
// cannot describe directly; -v and -config are parsed out of argv by hand
// before the remaining arguments are read positionally.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/samsamfire/fileapp/pkg/client"
	"github.com/samsamfire/fileapp/pkg/command"
	"github.com/samsamfire/fileapp/pkg/config"
	"github.com/samsamfire/fileapp/pkg/server"
	log "github.com/sirupsen/logrus"
)

const (
	minPort = 1024
	maxPort = 65535
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  fileapp [-v] -s <port>")
	fmt.Fprintln(os.Stderr, "  fileapp [-v] [-config <file>] -c <name> <server-ip> <server-port> <client-udp-port> <client-tcp-port>")
}

func main() {
	verbose, configPath, rest := extractGlobalFlags(os.Args[1:])
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if len(rest) >= 1 && rest[0] == "-s" {
		runServer(rest[1:])
		return
	}
	if len(rest) >= 1 && rest[0] == "-c" {
		runClient(rest[1:], configPath)
		return
	}
	usage()
	os.Exit(1)
}

// extractGlobalFlags pulls -v and -config <path> out of argv in any
// position, returning the remaining arguments untouched and in order.
func extractGlobalFlags(args []string) (verbose bool, configPath string, rest []string) {
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-v":
			verbose = true
		case "-config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		default:
			rest = append(rest, args[i])
		}
	}
	return verbose, configPath, rest
}

func runServer(args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || !validPort(port) {
		fmt.Fprintf(os.Stderr, "fileapp: server port must be an integer in [%d, %d]\n", minPort, maxPort)
		os.Exit(1)
	}

	dispatcher, err := server.New(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileapp: %v\n", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	if err := dispatcher.Run(); err != nil {
		log.Errorf("[fileapp] server loop exited: %v", err)
		os.Exit(1)
	}
}

func runClient(args []string, configPath string) {
	if len(args) != 5 {
		usage()
		os.Exit(1)
	}
	name, serverIP := args[0], args[1]
	serverPort, perr1 := strconv.Atoi(args[2])
	udpPort, perr2 := strconv.Atoi(args[3])
	tcpPort, perr3 := strconv.Atoi(args[4])

	if net.ParseIP(serverIP).To4() == nil {
		fmt.Fprintf(os.Stderr, "fileapp: server-ip %q is not a valid IPv4 address\n", serverIP)
		os.Exit(1)
	}
	if perr1 != nil || !validPort(serverPort) || perr2 != nil || !validPort(udpPort) || perr3 != nil || !validPort(tcpPort) {
		fmt.Fprintf(os.Stderr, "fileapp: ports must be integers in [%d, %d]\n", minPort, maxPort)
		os.Exit(1)
	}

	conn, err := net.DialUDP("udp", &net.UDPAddr{Port: udpPort}, &net.UDPAddr{IP: net.ParseIP(serverIP), Port: serverPort})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileapp: %v\n", err)
		os.Exit(1)
	}

	view, err := client.Register(conn, name, tcpPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileapp: registration failed: %v\n", err)
		os.Exit(1)
	}

	rt := client.NewRuntime(conn, name, tcpPort, view)
	if err := rt.StartTCPListener(); err != nil {
		fmt.Fprintf(os.Stderr, "fileapp: %v\n", err)
		os.Exit(1)
	}

	go rt.RunUDPListener()
	go rt.RunTCPListener()

	interp := command.New(rt)
	if configPath != "" {
		applyAutostart(interp, configPath)
	}

	interp.Run(os.Stdin)
	rt.Close()
}

func applyAutostart(interp *command.Interpreter, configPath string) {
	autostart, err := config.Load(configPath)
	if err != nil {
		log.Warnf("[fileapp] autostart config not applied: %v", err)
		return
	}
	if autostart.Dir == "" {
		return
	}
	interp.Dispatch("setdir " + autostart.Dir)
	if len(autostart.Files) == 0 {
		return
	}
	line := "offer"
	for _, f := range autostart.Files {
		line += " " + f
	}
	interp.Dispatch(line)
}

func validPort(p int) bool {
	return p >= minPort && p <= maxPort
}
