// Package poll 按固定周期重新读取整条空间记录，让订阅者的视图保持最新。
// 每份快照都整体替换上一份。
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"loveroom/internal/metrics"
	"loveroom/internal/models"
	"loveroom/internal/service"

	"github.com/rs/zerolog/log"
)

// DefaultPeriod 是未配置时的刷新间隔。
const DefaultPeriod = 2 * time.Second

// Source 读取完整空间记录，*service.SpaceService 与 REST 客户端都实现了它。
type Source interface {
	GetSpace(ctx context.Context, id string) (*models.SpaceData, error)
}

// Snapshot 是读取时刻空间的完整持久化状态。
type Snapshot struct {
	SpaceID   string
	SpaceName string
	Messages  []models.Message
}

type Poller struct {
	src    Source
	period time.Duration
}

func New(src Source, period time.Duration) *Poller {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Poller{src: src, period: period}
}

func (p *Poller) Period() time.Duration { return p.period }

// Subscribe 立即读取一次 spaceID，之后每个周期读取一次，在同一个 goroutine
// 中按读取顺序调用 fn。空间不存在或读取失败时跳过本次。返回的函数结束订阅并
// 等待进行中的读取完成，可重复调用；取消 ctx 同样会结束订阅。
func (p *Poller) Subscribe(ctx context.Context, spaceID string, fn func(Snapshot)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.tick(ctx, spaceID, fn)
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx, spaceID, fn)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (p *Poller) tick(ctx context.Context, spaceID string, fn func(Snapshot)) {
	if ctx.Err() != nil {
		return
	}
	data, err := p.src.GetSpace(ctx, spaceID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrSpaceNotFound):
		metrics.PollFetches.WithLabelValues("not_found").Inc()
		return
	default:
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("space_id", spaceID).Msg("poll fetch")
		}
		metrics.PollFetches.WithLabelValues("error").Inc()
		return
	}
	metrics.PollFetches.WithLabelValues("ok").Inc()
	if ctx.Err() != nil {
		return
	}
	fn(Snapshot{SpaceID: data.ID, SpaceName: data.Name, Messages: data.Messages})
}
