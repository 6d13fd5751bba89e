package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/knocklabs/knock-go/knock"
)

const FeedCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Knock feed control.

The default urls are:
    api_url: https://api.knock.app
    ws_url: wss://api.knock.app/ws/v1/websocket

Usage:
    feedctl fetch [--api_url=<api_url>] --api_key=<api_key>
        --user_id=<user_id>
        --feed_id=<feed_id>
        [--user_token=<user_token>]
        [--status=<status>]
        [--archived=<archived>]
        [--page_size=<page_size>]
        [--pages=<pages>]
    feedctl listen [--api_url=<api_url>] [--ws_url=<ws_url>] --api_key=<api_key>
        --user_id=<user_id>
        --feed_id=<feed_id>
        [--user_token=<user_token>]
        [--status=<status>]
        [--archived=<archived>]
    feedctl mark [--api_url=<api_url>] --api_key=<api_key>
        --user_id=<user_id>
        --feed_id=<feed_id>
        [--user_token=<user_token>]
        --status=<status>
        <message_id>...
    feedctl mark-all [--api_url=<api_url>] --api_key=<api_key>
        --user_id=<user_id>
        --feed_id=<feed_id>
        [--user_token=<user_token>]
        --status=<status>

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --api_key=<api_key>        Public api key.
    --user_id=<user_id>
    --user_token=<user_token>  Signed user token (enhanced security mode).
    --feed_id=<feed_id>        In-app feed channel id.
    --status=<status>          One of seen, unseen, read, unread, interacted,
                               archived, unarchived; or a filter for fetch.
    --archived=<archived>      Archived scope: exclude, include, only.
    --page_size=<page_size>    Items per page.
    --pages=<pages>            Fetch this many pages then exit.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], FeedCtlVersion)
	if err != nil {
		panic(err)
	}

	if fetch_, _ := opts.Bool("fetch"); fetch_ {
		fetch(opts)
	} else if listen_, _ := opts.Bool("listen"); listen_ {
		listen(opts)
	} else if mark_, _ := opts.Bool("mark"); mark_ {
		mark(opts)
	} else if markAll_, _ := opts.Bool("mark-all"); markAll_ {
		markAll(opts)
	}
}

func initFeed(opts docopt.Opts) (*knock.Client, *knock.Feed) {
	apiKey, _ := opts.String("--api_key")
	userId, _ := opts.String("--user_id")
	userToken, _ := opts.String("--user_token")
	feedId, _ := opts.String("--feed_id")

	settings := knock.DefaultClientSettings()
	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		settings.ApiUrl = apiUrl
	}
	if wsUrl, err := opts.String("--ws_url"); err == nil && wsUrl != "" {
		settings.WsUrl = wsUrl
	}

	client := knock.NewClient(context.Background(), apiKey, settings)
	client.Authenticate(userId, userToken)

	options := knock.DefaultFeedClientOptions()
	if status, err := opts.String("--status"); err == nil && status != "" {
		options.Status = knock.FeedItemStatus(status)
	}
	if archived, err := opts.String("--archived"); err == nil && archived != "" {
		options.Archived = knock.ArchivedScope(archived)
	}
	if pageSize, err := opts.Int("--page_size"); err == nil && 0 < pageSize {
		options.PageSize = pageSize
	}

	feed := client.Feeds().InitFeedClient(feedId, options)
	return client, feed
}

func printItems(items []*knock.FeedItem) {
	for _, item := range items {
		read := " "
		if item.ReadAt != nil {
			read = "r"
		}
		seen := " "
		if item.SeenAt != nil {
			seen = "s"
		}
		Out.Printf("[%s%s] %s %s %s", read, seen, item.Id, item.InsertedAt.Format("2006-01-02 15:04:05"), item.Source.Key)
	}
}

func fetch(opts docopt.Opts) {
	client, feed := initFeed(opts)
	defer client.Close()

	pages := 1
	if pages_, err := opts.Int("--pages"); err == nil && 0 < pages_ {
		pages = pages_
	}

	result := feed.Fetch(nil)
	for i := 1; result != nil; i += 1 {
		if result.Status != knock.StatusCodeOk {
			Err.Printf("Fetch error (%s).", result.Err)
			return
		}
		printItems(result.Response.Entries)
		if pages <= i {
			break
		}
		result = feed.FetchNextPage()
	}

	metadata := feed.Store().Metadata()
	Out.Printf("total=%d unread=%d unseen=%d", metadata.TotalCount, metadata.UnreadCount, metadata.UnseenCount)
}

func listen(opts docopt.Opts) {
	client, feed := initFeed(opts)
	defer client.Close()

	unsub := feed.On("items.*", func(event string, payload *knock.EventPayload) {
		Out.Printf("%s (%d items)", event, len(payload.Items))
		printItems(payload.Items)
	})
	defer unsub()

	feed.Fetch(nil)
	feed.ListenForUpdates()
	defer feed.Teardown()

	Out.Printf("Listening for updates. Ctrl-C to exit.")
	cancelSignal := make(chan os.Signal, 1)
	signal.Notify(cancelSignal, syscall.SIGINT, syscall.SIGTERM)
	<-cancelSignal
}

func mark(opts docopt.Opts) {
	client, feed := initFeed(opts)
	defer client.Close()

	status, _ := opts.String("--status")
	messageIds := opts["<message_id>"].([]string)

	// resolve the ids against the loaded feed page
	result := feed.Fetch(nil)
	if result == nil || result.Status != knock.StatusCodeOk {
		Err.Printf("Fetch error.")
		return
	}
	items := []*knock.FeedItem{}
	for _, item := range feed.Store().Items() {
		for _, messageId := range messageIds {
			if item.Id == messageId {
				items = append(items, item)
			}
		}
	}
	if len(items) == 0 {
		Err.Printf("No matching items loaded.")
		return
	}

	var err error
	switch knock.MessageEngagementStatus(status) {
	case knock.MessageStatusSeen:
		_, err = feed.MarkAsSeen(items...)
	case knock.MessageStatusUnseen:
		_, err = feed.MarkAsUnseen(items...)
	case knock.MessageStatusRead:
		_, err = feed.MarkAsRead(items...)
	case knock.MessageStatusUnread:
		_, err = feed.MarkAsUnread(items...)
	case knock.MessageStatusInteracted:
		_, err = feed.MarkAsInteracted(items...)
	case knock.MessageStatusArchived:
		_, err = feed.MarkAsArchived(items...)
	case knock.MessageStatusUnarchived:
		_, err = feed.MarkAsUnarchived(items...)
	default:
		Err.Printf("Unknown status (%s).", status)
		return
	}
	if err != nil {
		Err.Printf("Mark error (%s).", err)
		return
	}
	Out.Printf("Marked %d items %s.", len(items), status)
}

func markAll(opts docopt.Opts) {
	client, feed := initFeed(opts)
	defer client.Close()

	status, _ := opts.String("--status")

	var result *knock.BulkUpdateAllStatusesResult
	var err error
	switch knock.MessageEngagementStatus(status) {
	case knock.MessageStatusSeen:
		result, err = feed.MarkAllAsSeen()
	case knock.MessageStatusRead:
		result, err = feed.MarkAllAsRead()
	case knock.MessageStatusArchived:
		result, err = feed.MarkAllAsArchived()
	default:
		Err.Printf("Unknown bulk status (%s).", status)
		return
	}
	if err != nil {
		Err.Printf("Bulk error (%s).", err)
		return
	}
	if result.Error != nil {
		Err.Printf("Bulk rejected (%s).", result.Error.Message)
		return
	}
	Out.Printf("Bulk operation %s is %s.", result.Operation.Id, result.Operation.Status)
}