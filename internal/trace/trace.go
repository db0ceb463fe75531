// Package trace follows one webhook delivery through parsing, tracking and
// the chat send.
package trace

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Stage is a step a delivery passed through.
type Stage string

const (
	StageReceived Stage = "received"
	StageValid    Stage = "valid"
	StageTracked  Stage = "tracked"
	StageSent     Stage = "sent"

	StageFailedPrefix = "failed_"
)

// StageFailed names a failure stage, e.g. failed_validation.
func StageFailed(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageFailedPrefix, reason))
}

// Delivery carries trace metadata for one inbound webhook.
type Delivery struct {
	ID     string
	Remote string

	mu     sync.Mutex
	game   string
	player string
	round  string
	stages map[Stage]int64
	order  []Stage
}

// NewDelivery starts a trace with a fresh id and the received stage set.
func NewDelivery(remote string) *Delivery {
	d := &Delivery{
		ID:     uuid.NewString(),
		Remote: remote,
		stages: make(map[Stage]int64),
	}
	d.Mark(StageReceived)
	return d
}

// Describe attaches the turn once the payload is parsed.
func (d *Delivery) Describe(game, player, round string) {
	d.mu.Lock()
	d.game, d.player, d.round = game, player, round
	d.mu.Unlock()
}

// Mark records that the delivery reached stage and returns its count.
func (d *Delivery) Mark(stage Stage) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.stages[stage]; !seen {
		d.order = append(d.order, stage)
	}
	d.stages[stage]++
	return d.stages[stage]
}

// Reached reports whether stage was marked.
func (d *Delivery) Reached(stage Stage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stages[stage] > 0
}

// Stages lists marked stages in first-seen order.
func (d *Delivery) Stages() []Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Stage(nil), d.order...)
}

// Log writes the trace as one structured line.
func (d *Delivery) Log(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}
	d.mu.Lock()
	game, player, round := d.game, d.player, d.round
	d.mu.Unlock()

	logger.Info(msg,
		"delivery_id", d.ID,
		"remote", d.Remote,
		"game", game,
		"player", player,
		"round", round,
		"stages", d.Stages(),
	)
}
