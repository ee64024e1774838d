// Package tasks 提供带声明延迟的延后任务队列，同一种任务同时最多只有一个在等待或执行。
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/logging"
)

// Func 是被调度的任务体，ctx 在队列关闭时取消。
type Func func(ctx context.Context)

// Queue 管理延后任务。零值不可用，使用 New 构造。
type Queue struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
	running map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

// New 构造队列。
func New(logger *logrus.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.Component(logger, "tasks"),
		pending: make(map[string]*time.Timer),
		running: make(map[string]bool),
	}
}

// Schedule 在 delay 之后执行 fn。同类任务仍在等待或执行时返回 false，不重复调度。
func (q *Queue) Schedule(kind string, delay time.Duration, fn Func) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.pending[kind] != nil || q.running[kind] {
		q.logger.WithField("kind", kind).Debug("task_collapsed")
		return false
	}

	q.wg.Add(1)
	q.pending[kind] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.pending[kind] == nil {
			// Close 已摘除该任务但未能停止计时器
			q.mu.Unlock()
			q.wg.Done()
			return
		}
		delete(q.pending, kind)
		q.running[kind] = true
		q.mu.Unlock()

		defer func() {
			q.mu.Lock()
			delete(q.running, kind)
			q.mu.Unlock()
			q.wg.Done()
		}()
		fn(q.ctx)
	})
	q.logger.WithFields(logrus.Fields{"kind": kind, "delay": delay.String()}).Debug("task_scheduled")
	return true
}

// Pending 判断某类任务是否在等待或执行。
func (q *Queue) Pending(kind string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[kind] != nil || q.running[kind]
}

// Wait 阻塞到所有已调度任务结束。
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close 取消所有尚未触发的任务并通知执行中的任务退出，随后等待它们结束。
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for kind, timer := range q.pending {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.pending, kind)
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
