// The viewer tails the chat from a terminal: it prints the caller's channels
// as a table, then follows one scope live.
package main

import (
	"chat-core/client"
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/projection"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	URL      string `envconfig:"URL" default:"ws://localhost:8080/ws"`
	Token    string `envconfig:"TOKEN" required:"true"`
	Scope    string `envconfig:"SCOPE"`
	Limit    int    `envconfig:"LIMIT" default:"50"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours  bool   `envconfig:"COLOURS" default:"true"`
}

func main() {
	var config Config
	if err := envconfig.Process("VIEWER", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, config.URL, config.Token, logs.GetLoggerFromString(config.LogLevel))
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	channels, err := c.Subscribe(ctx, "channels", 0)
	if err != nil {
		log.Fatalf("Channel list unavailable: %v", err)
	}
	lists := projection.NewLists()
	lists.ResetChannels(channels.Snapshot)
	renderChannels(lists.Channels)

	if config.Scope == "" {
		return
	}
	scope, err := chat.ParseScope(config.Scope)
	if err != nil {
		log.Fatalf("Invalid scope: %v", err)
	}
	feed, err := c.Subscribe(ctx, config.Scope, config.Limit)
	if err != nil {
		log.Fatalf("Subscription failed: %v", err)
	}
	timeline := projection.NewTimeline(scope, config.Limit)
	timeline.Reset(feed.Snapshot)
	color.Bold.Printf("== %s ==\n", scope)
	for _, m := range timeline.Messages {
		printMessage(m)
	}

	channelDeltas := channels.Deltas()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-channelDeltas:
			if !ok {
				channelDeltas = nil
				continue
			}
			if lists.Apply(d) {
				renderChannels(lists.Channels)
			}
		case d, ok := <-feed.Deltas():
			if !ok {
				color.Red.Printf("Subscription ended: %v\n", feed.Err())
				return
			}
			if timeline.Apply(d) {
				printDelta(d)
			}
		}
	}
}

func renderChannels(channels []chat.Channel) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Visibility", "Members", "Description"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, ch := range channels {
		members := "-"
		if !ch.IsPublic() {
			members = fmt.Sprint(len(ch.Members))
		}
		table.Append([]string{"#" + ch.Name, string(ch.Visibility), members, ch.Description})
	}
	table.Render()
}

func printDelta(d event.Delta) {
	if d.Message != nil {
		printMessage(*d.Message)
	}
}

func printMessage(m chat.Message) {
	author := color.Cyan.Sprint(m.AuthorName)
	if m.AuthorID == chat.AssistantID {
		author = color.Magenta.Sprint(m.AuthorName)
	}
	fmt.Printf("%s %s %s\n", color.Gray.Sprint(m.CreatedAt.Format("15:04:05")), author, m.Text)
}
