package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/termchat/internal/client"
	"github.com/Tyrowin/termchat/internal/protocol"
)

var (
	connectAddr   string
	connectWSURL  string
	connectOrigin string
)

var connectCmd = &cobra.Command{
	Use:   "connect <username>",
	Short: "Join a broker from the terminal",
	Long: `Join a broker and chat line by line: every line typed on stdin is sent as
a message, and every broadcast is printed as it arrives.

Examples:
  termchat connect alice                                # TCP to 127.0.0.1:7878
  termchat connect alice --addr chat.example.com:7878
  termchat connect alice --ws ws://localhost:8080/ws    # through the WebSocket gateway`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	flags := connectCmd.Flags()
	flags.StringVar(&connectAddr, "addr", "127.0.0.1:7878", "broker TCP address")
	flags.StringVar(&connectWSURL, "ws", "", "WebSocket gateway URL; overrides --addr")
	flags.StringVar(&connectOrigin, "origin", "", "Origin header sent with --ws")

	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	username := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := dial(ctx, username)
	if err != nil {
		if errors.Is(err, client.ErrAuthDenied) {
			return fmt.Errorf("username %q was rejected (taken, or the server is full)", username)
		}
		return err
	}
	defer session.Close()

	out := cmd.OutOrStdout()
	received := make(chan error, 1)
	go func() {
		received <- printIncoming(out, session)
	}()

	sent := make(chan error, 1)
	go func() {
		sent <- sendLines(cmd.InOrStdin(), session)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-sent:
		return err
	case err := <-received:
		if errors.Is(err, client.ErrConnectionClosed) {
			fmt.Fprintln(out, "Disconnected from server.")
			return nil
		}
		return err
	}
}

func dial(ctx context.Context, username string) (*client.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if connectWSURL != "" {
		header := http.Header{}
		if connectOrigin != "" {
			header.Set("Origin", connectOrigin)
		}
		return client.ConnectWebSocket(dialCtx, connectWSURL, username, header)
	}
	return client.Connect(dialCtx, connectAddr, username)
}

func printIncoming(w io.Writer, session *client.Session) error {
	for {
		sig, err := session.ReceiveNext()
		if err != nil {
			return err
		}
		if line, ok := formatSignal(sig); ok {
			fmt.Fprintln(w, line)
		}
	}
}

// formatSignal renders a broadcast for the terminal. Signals other than
// NEW_MESSAGE are not shown.
func formatSignal(s protocol.Signal) (string, bool) {
	if s.Type != protocol.SignalNewMessage {
		return "", false
	}
	if s.ServerMessage {
		return "* " + s.Message, true
	}
	return fmt.Sprintf("<%s> %s", s.Username, s.Message), true
}

func sendLines(r io.Reader, session *client.Session) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := session.SendMessage(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
