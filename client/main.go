package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/client"
	"github.com/mahaj/dupahar-dm/pkg/logging"
	"github.com/mahaj/dupahar-dm/pkg/model"
)

const help = `commands:
  /to <user>   switch the conversation
  /typing      tell the peer you are typing (again to stop)
  /online      refresh and print who is online
  /convs       print conversation summaries
  /history     print messages with the current peer
  /quit        leave
anything else is sent to the current peer`

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	dmUser := flag.String("dm", "", "user id to talk to")
	logLevel := flag.String("log", "warn", "log level")
	flag.Parse()

	log, closer, err := logging.New("client", *logLevel, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prompt := func() { fmt.Print("> ") }
	c := client.New(*userID,
		client.WebsocketDialer(*serverAddr),
		client.LoginTokenSource(&http.Client{Timeout: 10 * time.Second}, *apiAddr, *userID),
		client.Options{
			Handlers: client.Handlers{
				OnMessage: func(m model.Message) {
					if m.SenderID == *userID {
						return
					}
					fmt.Printf("\r%s: %s\n", m.SenderID, m.Content)
					prompt()
				},
				OnUserState: func(u string, online bool) {
					state := "offline"
					if online {
						state = "online"
					}
					fmt.Printf("\r* %s is %s\n", u, state)
					prompt()
				},
				OnTyping: func(u string, typing bool) {
					if typing {
						fmt.Printf("\rUser %s is typing...      \n", u)
						prompt()
					}
				},
				OnError: func(msg string) {
					fmt.Printf("\r! %s\n", msg)
					prompt()
				},
				OnState: func(s client.State) {
					fmt.Printf("\r[%s]\n", s)
					prompt()
				},
			},
			Log: log,
		})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	go func() {
		peer := *dmUser
		typing := false
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println(help)
		prompt()
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			cmd, arg, _ := strings.Cut(text, " ")
			var err error
			switch cmd {
			case "":
			case "/quit":
				stop()
				return
			case "/to":
				peer = strings.TrimSpace(arg)
				typing = false
				fmt.Printf("talking to %s\n", peer)
			case "/typing":
				typing = !typing
				err = c.Typing(peer, typing)
			case "/online":
				err = c.RefreshPresence()
				fmt.Println(strings.Join(c.Online(), ", "))
			case "/convs":
				for _, s := range c.Summaries() {
					fmt.Printf("%-16s %3d unread  %s  %s\n", s.UserID, s.UnreadCount, s.LastMessageTime.Local().Format(time.Kitchen), s.LastMessage)
				}
			case "/history":
				for _, m := range c.Messages(peer) {
					fmt.Printf("%s %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.SenderID, m.Content)
				}
			default:
				if peer == "" {
					fmt.Println("pick a peer with /to <user> first")
					break
				}
				typing = false
				err = c.Send(peer, text)
			}
			if err != nil {
				fmt.Println("error:", err)
			}
			prompt()
		}
		stop()
	}()

	<-done
	fmt.Println()
}
