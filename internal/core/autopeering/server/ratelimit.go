package server

import (
	"net/netip"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// defaultMaxSources 默认跟踪的来源地址数量
const defaultMaxSources = 4096

// sourceLimiter 按来源 IP 的令牌桶限速
//
// 限速器保存在有界 LRU 中，长期不活跃的来源被淘汰后重新获得满桶。
type sourceLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[netip.Addr, *rate.Limiter]
}

// newSourceLimiter 创建限速器，perSecond <= 0 时返回 nil（不限速）
func newSourceLimiter(perSecond float64, burst, maxSources int) (*sourceLimiter, error) {
	if perSecond <= 0 {
		return nil, nil
	}
	if burst < 1 {
		burst = 1
	}
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	cache, err := lru.New[netip.Addr, *rate.Limiter](maxSources)
	if err != nil {
		return nil, err
	}
	return &sourceLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache,
	}, nil
}

// allow 检查来源在 now 时刻是否还有令牌
func (s *sourceLimiter) allow(src netip.Addr, now time.Time) bool {
	if s == nil {
		return true
	}
	src = src.Unmap()

	l, ok := s.limiters.Get(src)
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters.Add(src, l)
	}
	return l.AllowN(now, 1)
}
