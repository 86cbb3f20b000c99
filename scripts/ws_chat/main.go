// Interactive terminal chat client for manual testing against a running server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/akorchagin/foliochat/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	userID := flag.String("id", "cli-user", "user id to bind")
	user := flag.String("user", "cli-user", "username to bind")
	token := flag.String("token", "", "bearer token from /api/login (optional)")
	room := flag.String("room", "general", "room to join")
	fallback := flag.String("fallback-room", "general", "room to fall back to when a join is denied")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	var ctrl *session.Controller
	handlers := session.Handlers{
		OnHistory: func(room string, messages []session.Message) {
			for _, msg := range messages {
				fmt.Printf("[%s] %s: %s\n", msg.Room, msg.Sender, msg.Content)
			}
			fmt.Printf("-- %d historical messages in %s --\n", len(messages), room)
		},
		OnMessage: func(msg session.Message) {
			fmt.Printf("[%s] %s: %s\n", msg.Room, msg.Sender, msg.Content)
		},
		OnPresence: func(room string, users []session.User) {
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Username)
			}
			fmt.Printf("-- online in %s: %s --\n", room, strings.Join(names, ", "))
		},
		OnAuthRequired: func(reason string) {
			fmt.Printf("-- authentication required: %s --\n", reason)
			cancel()
		},
		OnUnauthorized: func(deniedRoom, reason string) {
			fmt.Printf("-- join %s denied: %s --\n", deniedRoom, reason)
			if *fallback != "" && *fallback != deniedRoom {
				fmt.Printf("-- falling back to %s --\n", *fallback)
				if err := ctrl.Join(ctx, *fallback); err != nil {
					log.Printf("fallback join: %v", err)
				}
			}
		},
		OnMessageError: func(reason string) {
			fmt.Printf("-- message error: %s --\n", reason)
		},
	}

	ctrl, err := session.Dial(ctx, *addr, handlers)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- ctrl.Listen(ctx)
		cancel()
	}()

	if err := ctrl.Bind(ctx, *userID, *user, *token); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if err := ctrl.Join(ctx, *room); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. /join <room> switches rooms. Ctrl+C to exit.")

	inputLoop(ctx, ctrl)

	cancel()
	if err := <-listenErr; err != nil {
		return err
	}
	return nil
}

func inputLoop(ctx context.Context, ctrl *session.Controller) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if room, isJoin := strings.CutPrefix(text, "/join "); isJoin {
				if err := ctrl.Join(ctx, strings.TrimSpace(room)); err != nil {
					log.Printf("join: %v", err)
					return
				}
				continue
			}

			if err := ctrl.Send(ctx, ctrl.State().Room, text); err != nil {
				log.Printf("send: %v", err)
				return
			}
		}
	}
}
