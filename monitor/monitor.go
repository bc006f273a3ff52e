// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package monitor periodically queues a download check for every tracked position.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/tasks"
)

// Messages accepted on the control channel.
const (
	BeginMessage = "start"
	AbortMessage = "stop"
)

const statusTimeLayout = "Mon Jan _2 15:04:05 2006"

// PositionSource lists the tracked positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]model.TrackedPosition, error)
}

// Monitor manages the state of the periodic check.
type Monitor struct {
	positions  PositionSource
	queue      queue.Queue
	bands      []string
	logger     *slog.Logger
	statusChan chan chan string
}

// New initializes a monitor that requests bands for every position.
func New(positions PositionSource, q queue.Queue, bands []string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		positions:  positions,
		queue:      q,
		bands:      bands,
		logger:     logger.With("component", "monitor"),
		statusChan: make(chan chan string, 10),
	}
}

// RunWhile runs CheckAll on a timer or when BeginMessage arrives.
// It blocks until messageChan is closed.
func (m *Monitor) RunWhile(messageChan <-chan string, maxTimeBetweenChecks time.Duration) {
	m.logger.Info("monitor loop started", "frequency", maxTimeBetweenChecks)

	previousStatus := "\tNone"
	scheduleTimer := time.NewTimer(maxTimeBetweenChecks)
	nextScheduledStartTime := time.Now().Add(maxTimeBetweenChecks)

	for {
		startCheck := false

		// Status requests are answered while we wait.
		select {
		case <-scheduleTimer.C:
			m.logger.Info("maximum time between checks elapsed")
			startCheck = true
		case msg, ok := <-messageChan:
			if !ok {
				scheduleTimer.Stop()
				return
			}
			if msg == BeginMessage {
				m.logger.Info("user requested check start")
				startCheck = true
			}
		case respChan := <-m.statusChan:
			select {
			case respChan <- fmt.Sprintf("%v\nStatus: Sleeping until %v\nPrevious check:\n%v",
				time.Now().Format(statusTimeLayout),
				nextScheduledStartTime.Format(statusTimeLayout),
				previousStatus):
			default:
			}
		}

		if startCheck {
			previousStatus = m.check(messageChan)

			scheduleTimer.Stop()
		TimerDrainLoop:
			for {
				select {
				case <-scheduleTimer.C:
				default:
					break TimerDrainLoop
				}
			}
			scheduleTimer.Reset(maxTimeBetweenChecks)
			nextScheduledStartTime = time.Now().Add(maxTimeBetweenChecks)
		}
	}
}

// GetStatus is a thread safe way to get information about the monitor.
// It blocks until RunWhile answers.
func (m *Monitor) GetStatus() string {
	responseChan := make(chan string, 1)
	m.statusChan <- responseChan
	return <-responseChan
}

// check runs CheckAll and stops early when AbortMessage arrives.
func (m *Monitor) check(messageChan <-chan string) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case msg, ok := <-messageChan:
			if ok && msg == AbortMessage {
				m.logger.Info("user requested check abort")
				cancel()
			}
		case <-done:
		}
	}()

	started := time.Now()
	queued, err := m.CheckAll(ctx)
	close(done)

	status := fmt.Sprintf("\tStarted: %v\n\tQueued: %d", started.Format(statusTimeLayout), queued)
	if err != nil {
		m.logger.Error("check failed", "error", err, "queued", queued)
		return status + "\n\tError: " + err.Error()
	}
	return status + "\n\tCompleted: " + time.Now().Format(statusTimeLayout)
}

// CheckAll queues a download check for every tracked position and returns
// how many were queued.
func (m *Monitor) CheckAll(ctx context.Context) (int, error) {
	positions, err := m.positions.Positions(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, pos := range positions {
		if err = ctx.Err(); err != nil {
			return queued, err
		}
		if err = tasks.EnqueueDownload(ctx, m.queue, pos, m.bands); err != nil {
			return queued, fmt.Errorf("queueing %s: %w", pos, err)
		}
		queued++
	}
	m.logger.Info("download checks queued", "positions", queued)
	return queued, nil
}
