package autopeering

import (
	"errors"

	"github.com/dep2p/go-autopeering/internal/core/autopeering/peering"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 协议错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrFatal 致命错误，节点因此停止
	ErrFatal = peering.ErrFatal
)
