package vesting

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/journal"
)

// Options are the collaborators every ledger accepts besides its custody
// and clock.
type Options struct {
	Name     string
	Logger   log.Logger
	Recorder journal.Recorder
}

// Option configures a ledger.
type Option func(*Options)

// WithName sets the ledger name used in logs, events and snapshots.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithLogger(l log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithRecorder sets where mutation events are sent.
func WithRecorder(r journal.Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

// NewOptions applies opts over the defaults for a ledger called name.
func NewOptions(name string, opts ...Option) Options {
	o := Options{
		Name:     name,
		Logger:   log.Root(),
		Recorder: journal.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.Logger = o.Logger.With("ledger", o.Name)
	return o
}

// Record sends one event stamped with the ledger name.
func (o *Options) Record(kind journal.Kind, who common.Address, amount *uint256.Int, now uint64) {
	o.Recorder.Record(journal.NewEvent(o.Name, kind, who, amount, now))
}
