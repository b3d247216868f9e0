package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/akuznecov/whisperkit/internal/models"
)

func (a *App) getStatus() string {
	if a.isLoggedIn() {
		return fmt.Sprintf("(%s)", a.sess.UserID())
	}
	return ""
}

// Root runs the interactive loop until EOF or an exit command. Errors from
// command handlers are logged, never fatal; the loop stays interactive.
func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to WhisperKit CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("wk %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Println("Available commands: chats, direct, group, add, remove, leave, send, sendfile, watch, pending, logout, exit")
			} else {
				fmt.Println("Available commands: login, exit")
			}

		case "login":
			if err := a.Login(ctx); err != nil {
				log.Printf("Login unsuccessful: %s", err.Error())
			}

		case "logout":
			if err := a.Logout(ctx); err != nil {
				log.Printf("Logout error: %s", err.Error())
			}

		case "chats":
			a.requireLogin(func() { a.listChats(ctx) })

		case "direct":
			a.requireLogin(func() { a.createDirect(ctx, args) })

		case "group":
			a.requireLogin(func() { a.createGroup(ctx, args) })

		case "add":
			a.requireLogin(func() { a.changeMember(ctx, args, a.service.AddMember) })

		case "remove":
			a.requireLogin(func() { a.changeMember(ctx, args, a.service.RemoveMember) })

		case "leave":
			a.requireLogin(func() { a.leave(ctx, args) })

		case "send":
			a.requireLogin(func() { a.send(ctx, args) })

		case "sendfile":
			a.requireLogin(func() { a.sendFile(ctx, args) })

		case "watch":
			a.requireLogin(func() { a.watch(ctx, args) })

		case "pending":
			a.requireLogin(func() { a.pending(ctx) })

		case "exit", "quit":
			a.Logout(ctx)
			return

		default:
			fmt.Println("Unknown command, type 'help'")
		}
	}
}

func (a *App) requireLogin(f func()) {
	if !a.isLoggedIn() {
		fmt.Println("Please login first")
		return
	}
	f()
}

func (a *App) listChats(ctx context.Context) {
	chats, err := a.service.Chats(ctx)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	for _, c := range chats {
		kind := "direct"
		if c.IsGroup {
			kind = fmt.Sprintf("group %q", c.Name)
		}
		fmt.Printf("%s  %s  v%d  %s\n", c.ID, kind, c.KeyVersion, strings.Join(c.Participants, ", "))
	}
}

func (a *App) createDirect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: direct <user-id>")
		return
	}
	chat, err := a.service.CreateChat(ctx, args, false, "")
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	fmt.Printf("Chat %s ready\n", chat.ID)
}

func (a *App) createGroup(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: group <name> <user-id>...")
		return
	}
	chat, err := a.service.CreateChat(ctx, args[1:], true, args[0])
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	fmt.Printf("Group %s created as %s\n", chat.Name, chat.ID)
}

func (a *App) changeMember(ctx context.Context, args []string, op func(context.Context, string, string) (*models.Chat, error)) {
	if len(args) != 2 {
		fmt.Println("Usage: <add|remove> <chat-id> <user-id>")
		return
	}
	chat, err := op(ctx, args[0], args[1])
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	fmt.Printf("Roster updated, key version %d\n", chat.KeyVersion)
}

func (a *App) leave(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: leave <chat-id>")
		return
	}
	if err := a.service.LeaveChat(ctx, args[0]); err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	fmt.Println("Left chat")
}

func (a *App) send(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: send <chat-id> <text>")
		return
	}
	msg, err := a.service.SendMessage(ctx, args[0], strings.Join(args[1:], " "), models.MessageTypeText, nil, "")
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	if msg.Status == models.MessageStatusPending {
		fmt.Println("Relay unreachable, message queued")
		return
	}
	fmt.Println("Sent")
}

func (a *App) sendFile(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: sendfile <chat-id> <path>")
		return
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	msg, err := a.service.SendMessage(ctx, args[0], "", models.MessageTypeFile, data, filepath.Base(args[1]))
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	if msg.Status == models.MessageStatusPending {
		fmt.Println("Relay unreachable, file queued")
		return
	}
	fmt.Println("Sent")
}

// watch subscribes to a chat and prints decrypted messages until Enter is
// pressed.
func (a *App) watch(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: watch <chat-id>")
		return
	}
	cancel, err := a.service.Subscribe(ctx, args[0], func(msg *models.Message) {
		if msg.Type == models.MessageTypeText {
			fmt.Printf("\n[%s] %s: %s\n", msg.SentAt.Format("15:04:05"), msg.SenderID, msg.Content)
			return
		}
		fmt.Printf("\n[%s] %s sent %s (%d bytes)\n", msg.SentAt.Format("15:04:05"), msg.SenderID, msg.FileName, msg.FileSize)
	})
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	defer cancel()

	fmt.Println("Watching, press Enter to stop")
	a.reader.ReadString('\n')
}

func (a *App) pending(ctx context.Context) {
	n, err := a.service.Outbox().PendingCount(ctx)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return
	}
	fmt.Printf("%d queued, %d dropped\n", n, a.service.Outbox().Dropped())
}
