package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
)

const (
	// Kind is the resource name used in slightfiles.
	Kind = "pubsub.memory"

	// Namespace is the import module guests use.
	Namespace = "slight:pubsub"

	// TypeHandle tags open brokers in the Host Context handle table.
	TypeHandle resource.TypeID = 0x70730001

	// TypeSubscription tags subscriptions in the handle table.
	TypeSubscription resource.TypeID = 0x70730002
)

// Archive receives a copy of every published message. A kv.filesystem
// store satisfies it.
type Archive interface {
	Set(key string, value []byte) error
}

// Capability provides in-memory brokers.
type Capability struct{}

// New returns the pubsub.memory capability.
func New() *Capability {
	return &Capability{}
}

// State is one named broker.
type State struct {
	host.Resources
	broker  *Broker
	log     *zap.Logger
	archive string
	name    string
	run     string
	seq     atomic.Uint64
}

// Broker returns the state's broker.
func (s *State) Broker() *Broker {
	return s.broker
}

// ArchiveName returns the registry name messages are archived to, if any.
func (s *State) ArchiveName() string {
	return s.archive
}

// Close drops every subscription.
func (s *State) Close() error {
	return s.broker.Close()
}

// Build creates the broker. The "archive" option names a registry entry,
// e.g. "kv.filesystem/events", that receives a copy of every message.
func (c *Capability) Build(_ context.Context, bc host.BuildContext) (host.State, error) {
	archive, _ := bc.Option("archive")
	if archive != "" {
		if _, err := host.ParseResourceConfig(archive); err != nil {
			return nil, err
		}
	}
	return &State{
		broker:  NewBroker(),
		log:     bc.Log(),
		archive: archive,
		name:    bc.Config.Name,
		run:     uuid.NewString(),
	}, nil
}

// Publish delivers msg on topic and archives it when an archive is
// configured and resolvable through the registry. Archive keys are
// "<topic>.<broker>.<run>.<seq>": run is fresh per state, so brokers sharing
// an archive, and later runs against a persistent one, never collide.
func (s *State) Publish(topic string, msg []byte) int {
	n := s.broker.Publish(topic, msg)
	if s.archive == "" {
		return n
	}

	a, ok := resource.LookupAs[Archive](s.Map, s.archive)
	if !ok {
		s.log.Warn("pubsub archive not available", zap.String("archive", s.archive))
		return n
	}
	key := fmt.Sprintf("%s.%s.%s.%020d", archiveKey(topic), archiveKey(s.name), s.run, s.seq.Add(1))
	if err := a.Set(key, msg); err != nil {
		s.log.Warn("pubsub archive write failed", zap.String("archive", s.archive), zap.Error(err))
	}
	return n
}

func archiveKey(topic string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "\x00", "_", ".", "_").Replace(topic)
}

// Link defines the slight:pubsub functions. Every pubsub.memory config
// shares them; open selects the broker by name.
func (c *Capability) Link(l *host.Linker, _ host.ResourceConfig) error {
	i32 := api.ValueTypeI32
	defs := []struct {
		name string
		fn   host.Func
	}{
		{"open", host.Func{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}, Handler: open}},
		{"publish", host.Func{Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: []api.ValueType{i32}, Handler: publish}},
		{"subscribe", host.Func{Params: []api.ValueType{i32, i32, i32}, Results: []api.ValueType{i32}, Handler: subscribe}},
		{"receive", host.Func{Params: []api.ValueType{i32, i32, i32}, Results: []api.ValueType{i32}, Handler: receive}},
		{"unsubscribe", host.Func{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Handler: unsubscribe}},
	}
	for _, d := range defs {
		if err := l.Define(Namespace, d.name, d.fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds the pubsub.memory state linked under name.
func Lookup(hc *host.Context, name string) (*State, bool) {
	return host.StateAs[*State](hc, host.ResourceConfig{Resource: Kind, Name: name})
}

// open(name_ptr, name_len) -> handle
func open(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	name, ok := host.ReadString(mod, host.U32(stack[0]), host.U32(stack[1]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	st, ok := Lookup(hc, name)
	if !ok {
		stack[0] = host.I32(host.StatusNotFound)
		return
	}
	h, err := hc.Handles().Insert(TypeHandle, st)
	if err != nil {
		stack[0] = host.I32(host.StatusFailed)
		return
	}
	stack[0] = host.I32(int32(h))
}

// publish(h, topic_ptr, topic_len, msg_ptr, msg_len) -> status
func publish(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	v, ok := hc.Handles().GetTyped(resource.Handle(host.U32(stack[0])), TypeHandle)
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	topic, ok := host.ReadString(mod, host.U32(stack[1]), host.U32(stack[2]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	msg, ok := host.ReadBytes(mod, host.U32(stack[3]), host.U32(stack[4]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	v.(*State).Publish(topic, msg)
	stack[0] = host.I32(host.StatusOK)
}

// subscribe(h, topic_ptr, topic_len) -> subscription
func subscribe(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	v, ok := hc.Handles().GetTyped(resource.Handle(host.U32(stack[0])), TypeHandle)
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	topic, ok := host.ReadString(mod, host.U32(stack[1]), host.U32(stack[2]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	sub := v.(*State).broker.Subscribe(topic)
	h, err := hc.Handles().Insert(TypeSubscription, sub)
	if err != nil {
		sub.Drop()
		stack[0] = host.I32(host.StatusFailed)
		return
	}
	stack[0] = host.I32(int32(h))
}

// receive(sub, out_ptr, out_cap) -> len | status
// An empty queue yields StatusNotFound. A message larger than out_cap
// stays queued and yields StatusTooSmall.
func receive(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	v, ok := hc.Handles().GetTyped(resource.Handle(host.U32(stack[0])), TypeSubscription)
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	sub := v.(*Subscription)
	msg, ok := sub.Peek()
	if !ok {
		stack[0] = host.I32(host.StatusNotFound)
		return
	}
	n := host.WriteBytes(mod, host.U32(stack[1]), host.U32(stack[2]), msg)
	if n >= 0 {
		sub.Receive()
	}
	stack[0] = host.I32(n)
}

// unsubscribe(sub) -> status
func unsubscribe(_ context.Context, hc *host.Context, _ api.Module, stack []uint64) {
	h := resource.Handle(host.U32(stack[0]))
	if _, ok := hc.Handles().GetTyped(h, TypeSubscription); !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	hc.Handles().Remove(h)
	stack[0] = host.I32(host.StatusOK)
}
