package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/respkv/client"
)

const (
	cliHistFileEnv     = "RESPKV_CLI_HISTFILE"
	cliHistFileDefault = ".respkv_history"
)

var (
	cliHost    string
	cliPort    int
	cliTimeout time.Duration
)

func init() {
	flags := CliCmd.PersistentFlags()

	flags.StringVarP(&cliHost, "host", "a", "127.0.0.1", "Server hostname")
	flags.IntVarP(&cliPort, "port", "p", 6379, "Server port")
	flags.DurationVar(&cliTimeout, "timeout", 5*time.Second, "How long to wait for each reply")
}

var CliCmd = &cobra.Command{
	Use:   "cli [command [arg ...]]",
	Short: "Send commands to a respkv server",
	Long: `Send commands to a respkv server.

With arguments a single command is sent and its reply printed. Without
arguments commands are read interactively, or one per line from stdin when
it is not a terminal.

Usage
	respkv cli SET key value
	respkv cli
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := net.JoinHostPort(cliHost, strconv.Itoa(cliPort))

		dialCtx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()

		conn, err := client.Dial(dialCtx, addr, zap.NewNop())
		if err != nil {
			return fmt.Errorf("could not connect to %s: %w", addr, err)
		}
		defer conn.Close()

		out := cmd.OutOrStdout()

		if len(args) > 0 {
			return runCommand(conn, out, args)
		}

		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return runScript(conn, out, cmd.InOrStdin())
		}

		return repl(conn, out, addr)
	},
}

func runCommand(conn *client.Conn, out io.Writer, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	reply, err := conn.Do(ctx, args...)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, client.Format(reply))
	return nil
}

// runScript sends every line of in as a command.
func runScript(conn *client.Conn, out io.Writer, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		args, err := client.SplitArgs(scanner.Text())
		if err != nil {
			return err
		}

		if len(args) == 0 {
			continue
		}

		if err := runCommand(conn, out, args); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func repl(conn *client.Conn, out io.Writer, addr string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	historyFile := historyPath()
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	defer func() {
		if historyFile == "" {
			return
		}

		if f, err := os.Create(historyFile); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	prompt := addr + "> "

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		args, err := client.SplitArgs(input)
		if err != nil {
			fmt.Fprintln(out, "Invalid argument(s)")
			continue
		}

		if len(args) == 0 {
			continue
		}

		line.AppendHistory(input)

		if err := runCommand(conn, out, args); err != nil {
			if errors.Is(err, client.ErrClosed) {
				fmt.Fprintln(out, "Connection closed by server")
				return nil
			}

			fmt.Fprintf(out, "(error) %s\n", err)
			continue
		}

		if strings.EqualFold(args[0], "quit") {
			return nil
		}
	}
}

func historyPath() string {
	if path := os.Getenv(cliHistFileEnv); path != "" {
		if path == os.DevNull {
			return ""
		}
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, cliHistFileDefault)
}
