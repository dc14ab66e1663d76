package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/db"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/jobs"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/metrics"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/queue"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/storage"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/timing"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/util"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/extract"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/graph"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/leaselock"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger/console"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/overlap"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/signals"
	pgxstore "github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	// extraction-schema prints the JSON schema goal extractions must follow.
	if len(os.Args) > 1 && os.Args[1] == "extraction-schema" {
		out, err := json.MarshalIndent(extract.Schema(), "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "rhiz-worker",
	})
	logger.Init(consoleLogger)

	databaseURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATIONS_ENABLED", true) {
		if err := db.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	st, err := pgxstore.NewGraphDBStorageWithConnection(ctx, pgConn)
	if err != nil {
		logger.Fatal("Failed to create storage", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// services
	builder := graph.NewBuilder(graph.NewBuilderParams{
		Store:    st,
		Parallel: util.GetEnvInt("GRAPH_PARALLEL", 4),
		Observer: metrics.EdgeObserver{},
	})
	signalService := signals.NewService(signals.NewServiceParams{Store: st})

	var archiver overlap.Archiver
	if client := storage.NewS3Client(ctx); client != nil {
		archiver = storage.NewSnapshotArchiver(client, util.GetEnv("AWS_BUCKET"), util.GetEnvString("AWS_PREFIX", "overlaps"))
	}
	detector := overlap.NewDetector(overlap.NewDetectorParams{
		Store:          st,
		IgnoredDomains: util.GetEnvList("OVERLAP_IGNORED_DOMAINS"),
		Archiver:       archiver,
	})

	handler := queue.NewHandler(queue.NewHandlerParams{
		Builder:   builder,
		Signals:   signalService,
		Store:     st,
		Publisher: queue.ChannelPublisher{Channel: ch},
	})

	// scheduled sweeps
	signalSweep := jobs.NewSignalSweep(st, signalService, util.GetEnvInt("SIGNALS_PARALLEL", 8))
	signalSweep.LayerReport = metrics.LayerReport

	host, _ := os.Hostname()
	scheduler := jobs.NewScheduler(jobs.NewSchedulerParams{
		Locker:   leaselock.New(pgConn, leaselock.Options{TTL: 10 * time.Minute, Holder: host + ":"}),
		Recorder: timing.NewSweepRuns(pgConn),
		Jobs: []jobs.Job{
			{
				Name:     "signals",
				LeaseKey: leaselock.SweepSignalsKey,
				Interval: util.GetEnvDuration("SIGNALS_INTERVAL", 24*time.Hour),
				Run:      signalSweep.Run,
			},
			{
				Name:     "overlap",
				LeaseKey: leaselock.SweepOverlapKey,
				Interval: util.GetEnvDuration("OVERLAP_INTERVAL", 6*time.Hour),
				Run:      jobs.NewOverlapSweep(detector).Run,
			},
		},
	})
	go scheduler.Start(ctx)

	if addr := util.GetEnv("METRICS_ADDR"); addr != "" {
		go metrics.Serve(ctx, addr)
	}

	// One consumer channel; prefetch bounds in-flight messages across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	prefetch := util.GetEnvInt("WORKER_PREFETCH", 1)
	if err := consumerCh.Qos(prefetch, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		msgs, err := consumerCh.Consume(
			queueName,
			fmt.Sprintf("%s_consumer_%s", queueName, host),
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
		}

		go func(qName string, msgs <-chan amqp.Delivery) {
			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						stop()
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	for i := 0; i < max(prefetch, 1); i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case qm := <-messageChan:
					process(ctx, handler, consumerCh, qm.msg, qm.queueName)
				}
			}
		}()
	}

	logger.Info("Listening for messages", "queues", len(queue.Queues), "prefetch", prefetch)
	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func process(ctx context.Context, handler *queue.Handler, ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	start := time.Now()
	logger.Debug("Received message", "queue", queueName)

	err := handler.Handle(ctx, queueName, msg.Body)
	if err != nil {
		logger.Error("Error processing message", "queue", queueName, "err", err)
		result := "retry"
		if errors.Is(err, queue.ErrInvalidMessage) {
			result = "dead_letter"
		}
		queue.HandleProcessingError(ctx, ch, msg, queueName, err)
		metrics.MessageHandled(queueName, result, time.Since(start))
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", "err", err)
	}
	metrics.MessageHandled(queueName, "ok", time.Since(start))
	logger.Debug("Message processed successfully", "queue", queueName, "duration", time.Since(start).String())
}
