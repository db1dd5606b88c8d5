// Package lifecycle runs shutdown handlers when the launcher receives
// SIGINT or SIGTERM. Child processes owned by a launch run (the loader
// installer, the game engine) register here so they do not outlive the launcher.
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Handler receives the OS signal that triggered shutdown.
type Handler func(os.Signal)

// HandlerID identifies a registered handler.
type HandlerID int64

type registry struct {
	mu       sync.RWMutex
	handlers map[HandlerID]Handler
	order    []HandlerID
	counter  atomic.Int64
}

var (
	defaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	handlers = newRegistry()

	startOnce  sync.Once
	signalChan chan os.Signal

	channelFactory = newSignalChan
	notifyFunc     = signal.Notify
	stopFunc       = signal.Stop
	exitFunc       = os.Exit
)

func newRegistry() *registry {
	return &registry{handlers: make(map[HandlerID]Handler)}
}

// Register adds a handler that will run when a shutdown signal arrives.
// Handlers execute in reverse registration order.
func Register(handler Handler) HandlerID {
	if handler == nil {
		return 0
	}

	startOnce.Do(startListener)
	return handlers.add(handler)
}

// Unregister removes a previously registered handler.
func Unregister(id HandlerID) {
	if id == 0 {
		return
	}
	handlers.remove(id)
}

// Guard registers kill for the lifetime of a child process and returns the
// function that releases it once the process has exited on its own.
func Guard(kill func()) (release func()) {
	if kill == nil {
		return func() {}
	}
	id := Register(func(os.Signal) { kill() })
	var once sync.Once
	return func() {
		once.Do(func() { Unregister(id) })
	}
}

func (reg *registry) add(handler Handler) HandlerID {
	id := HandlerID(reg.counter.Add(1))

	reg.mu.Lock()
	reg.handlers[id] = handler
	reg.order = append(reg.order, id)
	reg.mu.Unlock()

	return id
}

func (reg *registry) remove(id HandlerID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.handlers, id)
	for i, existing := range reg.order {
		if existing == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
}

// snapshot returns the handlers newest first.
func (reg *registry) snapshot() []Handler {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Handler, 0, len(reg.order))
	for i := len(reg.order) - 1; i >= 0; i-- {
		if handler := reg.handlers[reg.order[i]]; handler != nil {
			out = append(out, handler)
		}
	}
	return out
}

func (reg *registry) size() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.order)
}

func startListener() {
	signalChan = channelFactory()
	notifyFunc(signalChan, defaultSignals...)

	go func() {
		sig := <-signalChan
		for _, handler := range handlers.snapshot() {
			callHandler(handler, sig)
		}
		exitFunc(exitCode(sig))
	}()
}

func callHandler(handler Handler, sig os.Signal) {
	defer func() {
		// swallow panics so remaining handlers run
		_ = recover()
	}()
	handler(sig)
}

func exitCode(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return 130
	case syscall.SIGTERM:
		return 143
	default:
		return 1
	}
}

// reset clears global state (tests only).
func reset() {
	if signalChan != nil {
		stopFunc(signalChan)
	}
	signalChan = nil

	startOnce = sync.Once{}
	handlers = newRegistry()

	channelFactory = newSignalChan
	notifyFunc = signal.Notify
	stopFunc = signal.Stop
	exitFunc = os.Exit
}

func newSignalChan() chan os.Signal {
	return make(chan os.Signal, 1)
}
