package main

import (
	"context"
	"fmt"
	"go_msgq_copy/client/comms"
	"go_msgq_copy/client/worker"
	"go_msgq_copy/constants"
	"go_msgq_copy/queue"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"
)

func main() {
	args := argparse.NewParser("client", constants.Title)

	key := args.Int("k", "key", &argparse.Options{Required: false, Help: "Queue key shared with the server",
		Default: constants.MSG_KEY})
	backend := args.Selector("b", "backend", []string{"sysv", "amqp"}, &argparse.Options{Required: false,
		Help: "Queue backend", Default: constants.DEFAULT_BACKEND})
	uri := args.String("u", "amqp-uri", &argparse.Options{Required: false, Help: "AMQP broker address",
		Default: constants.DEFAULT_AMQP_URI})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS of the broker connection",
		Default: constants.DEFAULT_DSCP})
	file := args.String("f", "file", &argparse.Options{Required: true, Help: "File to request from the server"})
	priority := args.Int("p", "priority", &argparse.Options{Required: true, Help: "Priority " +
		"(1-" + strconv.Itoa(constants.MAX_PRIORITY) + "), higher values stream in smaller chunks"})
	output := args.String("o", "output", &argparse.Options{Required: false, Help: "Output file, - for stdout",
		Default: "-"})
	compress := args.Flag("z", "lz4", &argparse.Options{Help: "Write output as LZ4 frame"})
	timeout := args.Int("w", "timeout", &argparse.Options{Required: false, Help: "Give up after this many seconds, 0 waits forever",
		Default: 0})
	poll := args.Int("i", "poll", &argparse.Options{Required: false, Help: "Queue poll interval in ms",
		Default: constants.DEFAULT_POLL_MS})
	level := args.Selector("l", "log-level", []string{"debug", "info", "warn", "error"}, &argparse.Options{Required: false,
		Help: "Log level", Default: "info"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	if *priority < 1 || *priority > constants.MAX_PRIORITY {
		fmt.Println("Priority must be between 1 and " + strconv.Itoa(constants.MAX_PRIORITY))
		os.Exit(1)
	}

	ll, err := logrus.ParseLevel(*level)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	logrus.SetLevel(ll)

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

	session, err := comms.NewClient(q, comms.Options{
		Identity: int32(os.Getpid()),
		Timeout:  time.Duration(*timeout) * time.Second,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("could not start session")
	}

	out, err := worker.StartOutput(nil, *output, *compress, 16)
	if err != nil {
		log.WithError(err).Fatal("could not open output")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, terr := session.Transfer(ctx, *file, int32(*priority), out)
	if err := out.Close(); err != nil {
		log.WithError(err).Error("could not write output")
		os.Exit(2)
	}
	if terr != nil {
		os.Exit(1)
	}
}
