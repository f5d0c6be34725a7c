// Command raseed-push publishes a notification to the raseed push queue,
// for one user or for everyone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"raseed/internal/amqp"
	"raseed/internal/cli"
	"raseed/internal/log"
)

func main() {
	user := flag.String("user", "", "email of the recipient; empty sends to everyone")
	title := flag.String("title", "", "notification title")
	body := flag.String("body", "", "notification body")
	flag.Parse()

	if *title == "" {
		fmt.Fprintln(os.Stderr, "usage: raseed-push -title TITLE [-body BODY] [-user EMAIL]")
		os.Exit(2)
	}

	cfg, logger := cli.LoadAndValidateConfig()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to publish notifications")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.PublishNotification(ctx, *user, amqp.NewNotificationMessage(*title, *body)); err != nil {
		logger.Error("Failed to publish notification", log.FieldError, err, log.FieldOperation, log.OpPublish)
		os.Exit(1)
	}
}
