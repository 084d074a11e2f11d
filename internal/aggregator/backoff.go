package aggregator

import (
	"math/rand"
	"time"
)

// BackoffPolicy 重订阅退避策略
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int     // 自动重试上限，之后等待手动 Reconnect
	Jitter      float64 // 0..1，按比例随机减少等待时间
}

// DefaultBackoff 1s 起，翻倍，上限 30s，最多 5 次
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:     time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 5,
		Jitter:      0.2,
	}
}

// Delay 第 attempt 次（从 1 开始）重试前的等待时间，rnd 返回 [0,1)
func (p BackoffPolicy) Delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Initial
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 && rnd != nil {
		d -= time.Duration(float64(d) * p.Jitter * rnd())
	}
	if d < 0 {
		d = 0
	}
	return d
}

func defaultRand() float64 {
	return rand.Float64()
}
