package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/conclave/internal/pool"
)

// InlineScheduler 为每个任务直接起一个 goroutine，Wait 等待全部结束。
type InlineScheduler struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	err    error
	names  []string
	errors []error
}

// NewInlineScheduler 创建 InlineScheduler
func NewInlineScheduler() *InlineScheduler {
	return &InlineScheduler{}
}

// WithError 让后续 Submit 直接返回 err
func (s *InlineScheduler) WithError(err error) *InlineScheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *InlineScheduler) Submit(ctx context.Context, name string, task pool.Task) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.names = append(s.names, name)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := task(ctx)
		s.mu.Lock()
		s.errors = append(s.errors, err)
		s.mu.Unlock()
	}()
	return nil
}

// Wait 等待所有已提交的任务结束
func (s *InlineScheduler) Wait() {
	s.wg.Wait()
}

// Names 返回已提交任务的名称
func (s *InlineScheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Errors 返回已结束任务的错误（成功为 nil）
func (s *InlineScheduler) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}
