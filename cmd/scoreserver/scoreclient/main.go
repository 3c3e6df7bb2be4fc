// Command scoreclient talks to a highscore server from the terminal.
//
//	scoreclient [--addr host:port] get
//	scoreclient [--addr host:port] submit NAME SCORE
//
// Flags go before the command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/client"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scoreclient: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("scoreclient", pflag.ContinueOnError)
	addr := flags.StringP("addr", "a", envOr("SCORE_SERVER_ADDR", "localhost:1234"), "server address")
	timeout := flags.Duration("timeout", 5*time.Second, "dial timeout")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scoreclient [flags] get | submit NAME SCORE\n")
		flags.PrintDefaults()
	}
	// Flags end at the command, so a score such as -5 is not read as a flag.
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	var submit func(c *client.Client) error
	switch rest[0] {
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("get takes no arguments")
		}
	case "submit":
		if len(rest) != 3 {
			return fmt.Errorf("usage: submit NAME SCORE")
		}
		name := rest[1]
		score, err := strconv.Atoi(strings.TrimSpace(rest[2]))
		if err != nil {
			return fmt.Errorf("score must be an integer: %q", rest[2])
		}
		submit = func(c *client.Client) error {
			if err := c.Submit(name, score); err != nil {
				return err
			}
			fmt.Fprintf(out, "Sent %s & %d\n", strings.TrimSpace(name), score)
			return nil
		}
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c, err := client.Dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if submit != nil {
		return submit(c)
	}

	entries, err := c.Get()
	if err != nil {
		return err
	}
	printScores(out, entries)
	return nil
}

// printScores lists the ranking as "1. name : score".
func printScores(out io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No high scores yet")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(out, "%d. %s : %d\n", i+1, e.Name, e.Score)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
