package syncqueue

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延（1秒）。
	initialBackoff = time.Second
	// maxBackoff は指数バックオフの最大遅延（1分）。
	maxBackoff = time.Minute
	// maxAttempts は1ジョブあたりの最大試行回数。
	maxAttempts = 5
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大1分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
