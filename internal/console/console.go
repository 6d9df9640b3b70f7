// Package console runs the operator's interactive stdin prompt,
// exposing the same command table the in-game chat pass understands
// plus kick, so an operator at the terminal never has to join the game
// to administer the proxy. Output is colorized only when stdin is a
// real TTY.
package console

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/andrew-d/go-termutil"
	"github.com/jpillora/ansi"

	"github.com/relaycraft/multimc/internal/backend"
	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
)

// PlayerLister is the subset of *relay.ProxyState the console needs,
// kept as an interface so this package doesn't import internal/relay
// (which would create an import cycle once relay grows an admin-facing
// console handle).
type PlayerLister interface {
	PlayerNames() []string
	SwitchPlayer(name string, backend mapping.BackendID) error
	KickPlayer(name, by, why string) error
	Shutdown()
	BackendRegistry() *backend.Registry
}

var (
	yellow = string(ansi.Set(ansi.Yellow, ansi.Bright))
	red    = string(ansi.Set(ansi.Red, ansi.Bright))
	reset  = string(ansi.Set(ansi.Reset))
)

// Run reads lines from in until ctx is cancelled or in is closed,
// dispatching each as a console command. Intended to be run in its own
// goroutine against os.Stdin.
func Run(ctx context.Context, in *os.File, state PlayerLister) {
	colorize := termutil.Isatty(in.Fd())
	scanner := bufio.NewScanner(in)

	lines := make(chan string)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleLine(state, colorize, line)
		}
	}
}

func handleLine(state PlayerLister, colorize bool, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "list":
		names := state.PlayerNames()
		printInfo(colorize, fmt.Sprintf("%d player(s) online: %s", len(names), strings.Join(names, ", ")))
	case "switch":
		if len(fields) != 3 {
			printError(colorize, "usage: switch <player> <backend>")
			return
		}
		id, ok := resolveBackend(state.BackendRegistry(), fields[2])
		if !ok {
			printError(colorize, fmt.Sprintf("unknown backend %q", fields[2]))
			return
		}
		if err := state.SwitchPlayer(fields[1], id); err != nil {
			printError(colorize, err.Error())
			return
		}
		printInfo(colorize, fmt.Sprintf("switched %s to backend %s", fields[1], fields[2]))
	case "kick":
		if len(fields) < 3 {
			printError(colorize, "usage: kick <player> <reason...>")
			return
		}
		reason := strings.Join(fields[2:], " ")
		if err := state.KickPlayer(fields[1], "console", reason); err != nil {
			printError(colorize, err.Error())
			return
		}
		printInfo(colorize, fmt.Sprintf("kicked %s", fields[1]))
	case "stop":
		printInfo(colorize, "stopping proxy")
		state.Shutdown()
	default:
		printError(colorize, fmt.Sprintf("unknown command %q (try: list, switch <player> <backend>, kick <player> <reason>, stop)", fields[0]))
	}
}

func resolveBackend(registry *backend.Registry, arg string) (mapping.BackendID, bool) {
	if n, err := strconv.ParseUint(arg, 10, 64); err == nil {
		id := mapping.BackendID(n)
		if _, ok := registry.Get(id); ok {
			return id, true
		}
	}
	for _, id := range registry.All() {
		srv, _ := registry.Get(id)
		if strings.EqualFold(srv.Name, arg) {
			return id, true
		}
	}
	return 0, false
}

func printInfo(colorize bool, msg string) {
	if colorize {
		fmt.Println(yellow + msg + reset)
	} else {
		fmt.Println(msg)
	}
	logging.L().Infof("console: %s", msg)
}

func printError(colorize bool, msg string) {
	if colorize {
		fmt.Println(red + msg + reset)
	} else {
		fmt.Println("error: " + msg)
	}
}
