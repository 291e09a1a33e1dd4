package main

import (
	"context"
	"fmt"
	"go_msgq_copy/constants"
	"go_msgq_copy/queue"
	server "go_msgq_copy/server/controller"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"
)

func main() {
	args := argparse.NewParser("server", constants.Title)

	key := args.Int("k", "key", &argparse.Options{Required: false, Help: "Queue key shared with clients",
		Default: constants.MSG_KEY})
	backend := args.Selector("b", "backend", []string{"sysv", "amqp"}, &argparse.Options{Required: false,
		Help: "Queue backend", Default: constants.DEFAULT_BACKEND})
	uri := args.String("u", "amqp-uri", &argparse.Options{Required: false, Help: "AMQP broker address",
		Default: constants.DEFAULT_AMQP_URI})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS of the broker connection",
		Default: constants.DEFAULT_DSCP})
	root := args.String("r", "root", &argparse.Options{Required: false, Help: "Serve only files below this directory"})
	poll := args.Int("i", "poll", &argparse.Options{Required: false, Help: "Queue poll interval in ms",
		Default: constants.DEFAULT_POLL_MS})
	drain := args.Int("s", "shutdown", &argparse.Options{Required: false, Help: "Seconds granted to running transfers on shutdown",
		Default: constants.DEFAULT_SHUTDOWN})
	level := args.Selector("l", "log-level", []string{"debug", "info", "warn", "error"}, &argparse.Options{Required: false,
		Help: "Log level", Default: "info"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	ll, err := logrus.ParseLevel(*level)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	logrus.SetLevel(ll)

	if *root != "" {
		info, err := os.Stat(*root)
		if err != nil || !info.IsDir() {
			logrus.WithField("root", *root).Fatal("invalid root folder")
		}
	}

	log := logrus.WithFields(logrus.Fields{
		"pid":     os.Getpid(),
		"key":     *key,
		"backend": *backend,
	})

	opts := queue.DefaultOptions()
	opts.Backend = *backend
	opts.Key = *key
	opts.AMQPURI = *uri
	opts.DSCP = *dscp
	opts.Poll = time.Duration(*poll) * time.Millisecond

	q, err := queue.Open(opts)
	if err != nil {
		log.WithError(err).Fatal("could not open queue")
	}
	defer q.Close()
	log.Info("queue open")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(q, server.Options{
		Root:            *root,
		ShutdownTimeout: time.Duration(*drain) * time.Second,
	}, log)

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("dispatcher stopped")
	}
	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
	log.Info("server finished")
}
