package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/edup2p/mailbox/types"
	"github.com/edup2p/mailbox/types/mailbox"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run a node with an interactive shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shell := ishell.New()
		shell.SetHomeHistoryPath(".mailnode_history")

		node, err := StartNode(ctx, cfg, shellWriter{shell})
		if err != nil {
			return err
		}
		WatchPeers(node.svc)

		shell.Println("Mailnode Interactive Shell")
		shell.Println("node:", node.Me().Debug())

		addShellCmds(shell, node)

		shell.Run()

		node.Shutdown(context.Background())
		return nil
	},
}

// shellWriter prints through the shell, so output does not garble the prompt.
type shellWriter struct {
	shell *ishell.Shell
}

func (w shellWriter) Write(p []byte) (int, error) {
	w.shell.Print(string(p))
	return len(p), nil
}

func addShellCmds(shell *ishell.Shell, node *Node) {
	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(types.LevelTrace)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "me",
		Help: "show our public key",
		Func: func(c *ishell.Context) {
			text, err := node.Me().MarshalText()
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("me:", string(text))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "peers",
		Help: "show known and connected peers",
		Func: func(c *ishell.Context) {
			connected := make(map[string]bool)
			for _, p := range node.svc.Peers() {
				connected[p.Debug()] = true
			}

			for _, info := range node.svc.Known() {
				c.Printf("%s (%s) connected=%t\n", info.String(), info.Key.Debug(), connected[info.Key.Debug()])
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "open",
		Help: "open a mailbox: open [thread]",
		Func: func(c *ishell.Context) {
			thread := 0
			if len(c.Args) > 0 {
				t, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				thread = t
			}

			addr, err := node.Open(thread)
			if err != nil {
				c.Err(err)
				return
			}

			c.Println("opened:", addressText(addr))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "list",
		Help: "list open mailboxes",
		Func: func(c *ishell.Context) {
			for _, line := range types.Map(node.List(), addressText) {
				c.Println(line)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "close",
		Help: "destroy a mailbox: close <thread> <id>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(errors.New("usage: close <thread> <id>"))
				return
			}

			thread, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			id, err := strconv.ParseUint(c.Args[1], 10, 64)
			if err != nil {
				c.Err(err)
				return
			}

			if err := node.Close(context.Background(), mailbox.NewAddress(node.Me(), thread, mailbox.ID(id))); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send text to a mailbox: send <address> <text...>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(errors.New("usage: send <address> <text...>"))
				return
			}

			var addr mailbox.Address
			if err := addr.UnmarshalText([]byte(c.Args[0])); err != nil {
				c.Err(err)
				return
			}

			if err := node.Send(addr, strings.Join(c.Args[1:], " ")); err != nil {
				c.Err(err)
			}
		},
	})
}

func addressText(addr mailbox.Address) string {
	text, err := addr.MarshalText()
	if err != nil {
		return addr.String()
	}
	return string(text)
}
