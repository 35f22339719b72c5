package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Batcher partitions tickers into bounded chunks and enforces a blocking
// pause between them to respect upstream rate limits. Deliberately a fixed
// sleep, not a token bucket: callers get no timing guarantee beyond "no two
// chunks issued less than Pause apart".
type Batcher struct {
	ChunkSize int
	Pause     time.Duration
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewBatcher constructs a throttled batcher.
func NewBatcher(chunkSize int, pause time.Duration, logger zerolog.Logger) *Batcher {
	if chunkSize <= 0 {
		chunkSize = 40
	}
	return &Batcher{
		ChunkSize: chunkSize,
		Pause:     pause,
		logger:    logger.With().Str("component", "batcher").Logger(),
		sleep:     sleepCtx,
	}
}

// Chunks splits tickers into successive chunks in input order. The last
// chunk may be smaller than ChunkSize.
func (b *Batcher) Chunks(tickers []string) [][]string {
	if len(tickers) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(tickers)+b.ChunkSize-1)/b.ChunkSize)
	for start := 0; start < len(tickers); start += b.ChunkSize {
		end := start + b.ChunkSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunks = append(chunks, tickers[start:end])
	}
	return chunks
}

// ForEachChunk invokes fn per chunk, pausing between chunks but not after
// the last one. fn errors abort the iteration.
func (b *Batcher) ForEachChunk(ctx context.Context, tickers []string, fn func(ctx context.Context, chunk []string) error) error {
	chunks := b.Chunks(tickers)
	for i, chunk := range chunks {
		if err := fn(ctx, chunk); err != nil {
			return err
		}
		if i == len(chunks)-1 || b.Pause <= 0 {
			continue
		}
		b.logger.Debug().Dur("pause", b.Pause).Msg("throttling between chunks")
		if err := b.sleep(ctx, b.Pause); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
