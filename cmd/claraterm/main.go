// Command claraterm is a terminal chat client for a running clara server.
// It speaks the widget websocket protocol: typed lines become text messages,
// and slash commands drive the voice controls.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mateonavarro/clara/internal/protocol"
)

type options struct {
	baseURL string
	timeout time.Duration
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "claraterm: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://127.0.0.1:8080", "clara server base URL")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "websocket dial timeout")
	flag.Parse()
	return opts
}

func run(opts options) error {
	wsURL, err := toWebsocketURL(opts.baseURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.timeout}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	fmt.Println("connected. Type a message, or /listen, /stop, /clear, /quit.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printServerMessage(data)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return fmt.Errorf("connection closed by server")
		case <-sigCh:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var payload any
			switch line {
			case "/quit":
				return nil
			case "/listen":
				payload = protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStartListening}
			case "/stop":
				payload = protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStopListening}
			case "/clear":
				payload = protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionClearHistory}
			default:
				payload = protocol.ClientText{Type: protocol.TypeClientText, Text: line}
			}
			if err := conn.WriteJSON(payload); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func toWebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/v1/chat/ws"
	return u.String(), nil
}

func printServerMessage(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	switch env.Type {
	case protocol.TypeChatMessage:
		var msg protocol.ChatMessage
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		emoji := ""
		if msg.Message.Emotion != nil && msg.Message.Emotion.Emoji != "" {
			emoji = " " + msg.Message.Emotion.Emoji
		}
		fmt.Printf("[%s]%s %s\n", msg.Message.Sender, emoji, msg.Message.Text)
	case protocol.TypeHistorySnapshot:
		var snap protocol.HistorySnapshot
		if json.Unmarshal(data, &snap) != nil {
			return
		}
		fmt.Printf("--- history (%d messages) ---\n", len(snap.Messages))
		for _, m := range snap.Messages {
			fmt.Printf("[%s] %s\n", m.Sender, m.Text)
		}
	case protocol.TypeTranscriptPartial:
		var part protocol.TranscriptPartial
		if json.Unmarshal(data, &part) != nil {
			return
		}
		fmt.Printf("(hearing) %s\n", part.Text)
	case protocol.TypeStateEvent:
		var st protocol.StateEvent
		if json.Unmarshal(data, &st) != nil {
			return
		}
		fmt.Printf("(state) phase=%s listening=%v speaking=%v loading=%v mic=%s\n",
			st.State.Phase, st.State.IsListening, st.State.IsSpeaking, st.State.IsLoading, st.State.MicPermission)
	case protocol.TypeHintEvent:
		var hint protocol.HintEvent
		if json.Unmarshal(data, &hint) != nil {
			return
		}
		fmt.Printf("(hint) %s\n", hint.Detail)
	case protocol.TypeNavigateEvent:
		var nav protocol.NavigateEvent
		if json.Unmarshal(data, &nav) != nil {
			return
		}
		fmt.Printf("(navigate) %s\n", nav.Action)
	case protocol.TypeErrorEvent:
		var errEvt protocol.ErrorEvent
		if json.Unmarshal(data, &errEvt) != nil {
			return
		}
		fmt.Printf("(error) %s: %s\n", errEvt.Code, errEvt.Detail)
	case protocol.TypeCaptureCommand, protocol.TypeSpeakCommand:
		// Browser-directed commands; a terminal client has no speech stack.
	}
}
