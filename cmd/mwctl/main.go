// Command mwctl is an operator tool for inspecting a running Router's
// Manager: it asks for the current pub/sub socket descriptors and prints
// them in a table.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bluefin-robotics/middleware/pkg/manager"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func main() {
	var managerAddr string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "mwctl",
		Short: "Operator CLI for the interprocess pub/sub middleware",
	}
	root.PersistentFlags().StringVar(&managerAddr, "manager-addr", "127.0.0.1:11142", "address of the Manager to query")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for the Manager to reply")

	sockets := &cobra.Command{
		Use:   "sockets",
		Short: "print the pub/sub socket descriptors the Manager hands out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSockets(managerAddr, timeout)
		},
	}
	root.AddCommand(sockets)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSockets(managerAddr string, timeout time.Duration) error {
	interactive := isatty.IsTerminal(os.Stdout.Fd())

	var spin *spinner.Spinner
	if interactive {
		spin = spinner.New(spinner.CharSets[9], 100*time.Millisecond)
		spin.Suffix = fmt.Sprintf(" waiting for manager at %s", managerAddr)
		spin.Start()
	}

	reply, err := manager.RequestPubSubSockets(managerAddr, timeout)

	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		if interactive {
			color.Red("manager request failed: %v", err)
		} else {
			fmt.Fprintf(os.Stderr, "manager request failed: %v\n", err)
		}
		return err
	}

	printRow("ROLE", "TRANSPORT", "ADDRESS")
	printRow("publish", reply.Publish.Transport, reply.Publish.Address)
	printRow("subscribe", reply.Subscribe.Transport, reply.Subscribe.Address)
	return nil
}

// printRow aligns columns with runewidth so multi-byte transport/address
// values (rare, but possible from a non-ASCII platform id embedded in an
// ipc path) still line up.
func printRow(role, transport, address string) {
	const roleWidth, transportWidth = 12, 12
	fmt.Printf("%s%s%s%s%s\n",
		role, pad(role, roleWidth),
		transport, pad(transport, transportWidth),
		address,
	)
}

func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return " "
	}
	b := make([]byte, width-w+1)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
