package autopeering

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-autopeering/config"
	apcore "github.com/dep2p/go-autopeering/internal/core/autopeering"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/peer"
	"github.com/dep2p/go-autopeering/internal/core/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var fxLogger = log.Logger("autopeering/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序：
//  1. 配置注入与校验
//  2. 可选组件（私钥、时钟、指标注册器、邻居校验器）
//  3. 自动对等模块
//  4. 用户自定义 Fx 选项
//  5. Node 组件注入
func buildFxApp(cfg *config.Config, o *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := config.ValidateAll(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 可选组件
	// ════════════════════════════════════════════════════════════════════════
	if o.privateKey != nil {
		modules = append(modules, fx.Supply(o.privateKey))
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	if o.validator != nil {
		v := o.validator
		modules = append(modules, fx.Provide(func() NeighborValidator { return v }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 自动对等模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, apcore.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户自定义 Fx 选项
	// ════════════════════════════════════════════════════════════════════════
	if len(o.fxOptions) > 0 {
		fxLogger.Debug("追加自定义 Fx 选项", "count", len(o.fxOptions))
		modules = append(modules, o.fxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// 禁用 Fx 日志输出（避免干扰用户日志）
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}

// nodeComponents Node 需要持有的组件
type nodeComponents struct {
	fx.In

	Engine *apcore.Engine
	Peers  *peer.ActivePeersList
	Server *server.UDPServer
}

// injectNodeComponents 将组件注入 Node
func injectNodeComponents(node *Node) func(nodeComponents) {
	return func(c nodeComponents) {
		node.engine = c.Engine
		node.peers = c.Peers
		node.server = c.Server
	}
}
