package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/venicegeo/bf-scene-catalog/monitor"
	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/util"
)

// monitorAction starts the monitor loop and an http server to control it.
// Checks go to RabbitMQ when AMQP_URL is set, otherwise to in-process workers.
func monitorAction(*cli.Context) error {
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	var q queue.Queue
	amqpQueue, closeQueue, err := dialQueue(app)
	switch {
	case errors.Is(err, errNoBroker):
		util.LogInfo(app.logContext, fmt.Sprintf("No AMQP_URL, running tasks on %d local workers", app.cfg.Workers))
		if q, err = startLocalQueue(ctx, app); err != nil {
			return exitError(app.logContext, "Could not start local workers", err)
		}
	case err != nil:
		return exitError(app.logContext, "Could not connect to the task queue", err)
	default:
		defer closeQueue()
		q = amqpQueue
	}

	mon := monitor.New(app.store, q, app.cfg.MonitorBands, app.logger)

	// Create the channel that sends the start/stop messages to the monitor.
	messageChan := make(chan string, 5)
	go mon.RunWhile(messageChan, app.cfg.GetMonitorFrequency(app.logContext))

	server := &http.Server{Addr: app.cfg.GetPortStr(), Handler: createMonitorRouter(mon, messageChan)}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
		close(messageChan)
	}()

	util.LogInfo(app.logContext, "Listening on port "+app.cfg.GetPortStr())
	if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return exitError(app.logContext, "Monitor server failed", err)
	}
	return nil
}

// statusReporter is implemented by *monitor.Monitor.
type statusReporter interface {
	GetStatus() string
}

func createMonitorRouter(mon statusReporter, messageChan chan<- string) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/monitor/", func(resp http.ResponseWriter, req *http.Request) {
		handleMonitorStatus(mon, resp, req)
	})
	router.HandleFunc("/monitor/start", func(resp http.ResponseWriter, req *http.Request) {
		handleForceStart(mon, messageChan, resp, req)
	})
	router.HandleFunc("/monitor/cancel", func(resp http.ResponseWriter, req *http.Request) {
		handleCancel(mon, messageChan, resp, req)
	})
	return router
}

// handleMonitorStatus requests the status from the monitor and writes it out.
func handleMonitorStatus(mon statusReporter, writer http.ResponseWriter, req *http.Request) {
	fmt.Fprintln(writer, mon.GetStatus())
}

// handleForceStart sends a "start" message to the monitor and returns the new status to the user.
func handleForceStart(mon statusReporter, messageChan chan<- string, writer http.ResponseWriter, req *http.Request) {
	select {
	case messageChan <- monitor.BeginMessage:
		fmt.Fprintln(writer, "Begin check request submitted.")
	default:
		fmt.Fprintln(writer, "Error submitting request.")
	}
	fmt.Fprintln(writer, mon.GetStatus())
}

// handleCancel sends a "stop" message to the monitor and returns the new status to the user.
func handleCancel(mon statusReporter, messageChan chan<- string, writer http.ResponseWriter, req *http.Request) {
	select {
	case messageChan <- monitor.AbortMessage:
		fmt.Fprintln(writer, "Cancel request submitted.")
	default:
		fmt.Fprintln(writer, "Error submitting cancel request.")
	}
	fmt.Fprintln(writer, mon.GetStatus())
}
