package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/tasks"
	"github.com/venicegeo/bf-scene-catalog/util"
)

var errNoBroker = errors.New("AMQP_URL is not set")

// registerTasks binds the catalog operations to q.
func registerTasks(app *application, q queue.Queue) error {
	return (&tasks.Tasks{
		Queue:      q,
		Downloader: app.orchestrator,
		Generator:  app.pipeline,
		Catalog:    app.store,
		Logger:     app.logger.With("component", "tasks"),
	}).Register()
}

// dialQueue connects to the broker with every task registered.
func dialQueue(app *application) (*queue.AMQP, func(), error) {
	if app.cfg.AMQPURL == "" {
		return nil, nil, errNoBroker
	}
	q, err := queue.DialAMQP(app.cfg.AMQPURL, app.cfg.QueuePrefix, app.logger)
	if err != nil {
		return nil, nil, err
	}
	if err = registerTasks(app, q); err != nil {
		q.Close()
		return nil, nil, err
	}
	return q, func() { q.Close() }, nil
}

// startLocalQueue runs the tasks on an in-process pool until ctx is done.
func startLocalQueue(ctx context.Context, app *application) (*queue.Local, error) {
	q := queue.NewLocal(app.cfg.Workers, app.cfg.Workers*4, app.logger)
	if err := registerTasks(app, q); err != nil {
		return nil, err
	}
	q.Start(ctx)
	return q, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func workerAction(*cli.Context) error {
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	q, closeQueue, err := dialQueue(app)
	if errors.Is(err, errNoBroker) {
		return exitError(app.logContext, "The worker consumes from RabbitMQ; run `monitor` for in-process tasks", err)
	}
	if err != nil {
		return exitError(app.logContext, "Could not connect to the task queue", err)
	}
	defer closeQueue()

	ctx, stop := signalContext()
	defer stop()

	util.LogInfo(app.logContext, fmt.Sprintf("Worker consuming with %d slots per task", app.cfg.Workers))
	if err = q.Consume(ctx, app.cfg.Workers); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(app.logContext, "Worker stopped", err)
	}
	util.LogInfo(app.logContext, "Worker stopped")
	return nil
}
