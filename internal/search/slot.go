package search

import "sync"

// Status 搜索槽位状态。
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// SlotState 为槽位快照。Success 时 Error 为空，Failed 时 Result 为 nil。
type SlotState[T any] struct {
	Status   Status `json:"status"`
	Result   *T     `json:"result"`
	Error    string `json:"error,omitempty"`
	Searched bool   `json:"searched"`
}

// Slot 是单个搜索状态机：Idle → Loading → {Success, Failed}。
// 每次 Begin 生成新的代号，只有最新代号的完成结果会被应用，
// 因此结果顺序取决于调用顺序而不是响应到达顺序。
type Slot[T any] struct {
	mu    sync.Mutex
	gen   uint64
	state SlotState[T]
}

// NewSlot 创建处于 Idle 的槽位。
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{state: SlotState[T]{Status: StatusIdle}}
}

// Begin 同步进入 Loading，立即清空旧结果与错误，返回本次调用的代号。
func (s *Slot[T]) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = SlotState[T]{Status: StatusLoading, Searched: true}
	return s.gen
}

// Succeed 应用成功结果；代号过期时静默丢弃并返回 false。
func (s *Slot[T]) Succeed(token uint64, result T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.gen {
		return false
	}
	s.state = SlotState[T]{Status: StatusSuccess, Result: &result, Searched: true}
	return true
}

// Fail 应用失败信息；代号过期时静默丢弃并返回 false。
func (s *Slot[T]) Fail(token uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.gen {
		return false
	}
	s.state = SlotState[T]{Status: StatusFailed, Error: msg, Searched: true}
	return true
}

// Snapshot 返回当前状态副本。
func (s *Slot[T]) Snapshot() SlotState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
