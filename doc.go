// Package autopeering 提供基于 Salt 距离的自动邻居选择
//
// 每个节点维护两组邻居：
//
//   - 出站邻居：本地主动发起对等请求、按本地公开 Salt 计算距离选出
//   - 入站邻居：接受远端请求、按本地私有 Salt 计算距离择优保留
//
// 两组邻居容量有限，Salt 定期轮换，邻居集合随之重新洗牌。
// 远端节点的发现与身份验证不在本包范围内，由调用方通过 AddPeer
// 或配置中的已知节点提供。
//
// # 快速开始
//
//	node, err := autopeering.New(
//	    autopeering.WithBindAddr("0.0.0.0:14626"),
//	    autopeering.WithKnownPeers(known...),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop(context.Background())
//
//	sub := node.Events(16)
//	defer sub.Close()
//	for ev := range sub.Out() {
//	    fmt.Println(ev.Kind, ev.PeerID)
//	}
//
// # 文件组织
//
//	doc.go      包文档
//	errors.go   公共错误
//	types.go    事件与校验器类型别名
//	options.go  用户配置选项
//	fx.go       Fx 应用组装
//	node.go     Node 门面与生命周期
package autopeering
