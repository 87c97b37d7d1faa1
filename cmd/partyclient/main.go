// Command partyclient joins a room on a phone-party relay, prints the
// circles other members draw and sends circles typed on stdin.
//
// Input lines:
//
//	<x> <y>   send a circle at normalized coordinates with a random pastel color
//	ping      send a ping; the relay answers pong
//	quit      leave
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"phone-party/config"
	"phone-party/discovery"
	"phone-party/gesture"
	"phone-party/protocol"
	"phone-party/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	relayURL := flag.String("url", config.GetEnv("PARTY_URL", ""), "relay base url, e.g. ws://localhost:8080/party")
	room := flag.String("room", config.GetEnv("PARTY_ROOM", "default"), "room name")
	discoverFor := flag.Duration("discover", 5*time.Second, "how long to browse mDNS when -url is empty")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *relayURL == "" {
		dctx, cancel := context.WithTimeout(ctx, *discoverFor)
		found, err := discovery.Lookup(dctx)
		cancel()
		if err != nil {
			slog.Error("no relay url given and none found on the network", "error", err)
			os.Exit(1)
		}
		*relayURL = found
	}

	s, err := session.New(*relayURL)
	if err != nil {
		slog.Error("invalid relay url", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()
	go printUpdates(os.Stdout, updates)

	go keepConnected(ctx, s, *room, defaultBackOff)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return
			}
			if err := handleLine(s, line); err != nil {
				slog.Warn("input ignored", "line", line, "error", err)
			}
		}
	}
}

type sender interface {
	Send(text string) error
}

func handleLine(s sender, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if line == protocol.Ping {
		return s.Send(protocol.Ping)
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("want \"<x> <y>\", \"ping\" or \"quit\"")
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("y: %w", err)
	}
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return fmt.Errorf("coordinates must be within [0,1]")
	}

	msg, err := gesture.Encode(gesture.Event{X: x, Y: y, Color: gesture.RandomPastel(nil)})
	if err != nil {
		return err
	}
	return s.Send(msg)
}

func printUpdates(w io.Writer, updates <-chan session.Update) {
	for u := range updates {
		at := u.ReceivedAt.Format("15:04:05.000")
		if u.Event == nil {
			fmt.Fprintf(w, "%s  %s\n", at, u.Raw)
			continue
		}
		fmt.Fprintf(w, "%s  circle x=%.3f y=%.3f color=%s\n", at, u.Event.X, u.Event.Y, u.Event.Color)
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
