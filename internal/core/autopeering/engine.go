// Package autopeering 组装自动对等引擎
//
// Engine 在一个 errgroup 下监督协议主循环、周期任务、事件分发与 UDP 服务端。
// 任一任务返回错误（致命错误）时取消其余任务，错误通过 Err 与 Done 暴露。
package autopeering

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/event"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peering"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var logger = log.Logger("autopeering")

// ErrAlreadyStarted 引擎已启动
var ErrAlreadyStarted = errors.New("autopeering: engine already started")

// Engine 自动对等引擎监督者
type Engine struct {
	manager *peering.Manager
	server  *server.UDPServer
	events  *event.Channel
	bus     *event.Bus

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewEngine 创建引擎，srv 可为 nil（由调用方自行驱动数据包通道）
func NewEngine(manager *peering.Manager, srv *server.UDPServer, events *event.Channel, bus *event.Bus) *Engine {
	return &Engine{
		manager: manager,
		server:  srv,
		events:  events,
		bus:     bus,
		done:    make(chan struct{}),
	}
}

// Manager 返回协议引擎
func (e *Engine) Manager() *peering.Manager {
	return e.manager
}

// Bus 返回事件分发器
func (e *Engine) Bus() *event.Bus {
	return e.bus
}

// Start 启动所有任务
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.bus.Run(gctx, e.events)
	})
	if e.server != nil {
		g.Go(func() error {
			return e.server.Run(gctx)
		})
	}
	g.Go(func() error {
		return e.manager.Run(gctx)
	})
	for _, t := range e.manager.Tasks() {
		t := t
		g.Go(func() error {
			return t.Run(gctx)
		})
	}

	go func() {
		err := g.Wait()
		if err != nil {
			logger.Error("自动对等引擎因致命错误停止", "err", err)
		}
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	}()

	logger.Info("自动对等引擎已启动", "local", e.manager.Local().PeerID().ShortString())
	return nil
}

// Stop 停止所有任务并等待退出
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	started, cancel := e.started, e.cancel
	e.mu.Unlock()

	if !started {
		return nil
	}
	cancel()

	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 所有任务退出后关闭
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err 返回导致引擎停止的错误，正常停止时为 nil
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
