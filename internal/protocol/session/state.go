package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-moqt/pkg/types"
)

// ============================================================================
//                              Perspective / Phase
// ============================================================================

// Perspective 本端在连接中的位置
type Perspective int

const (
	// PerspectiveServer 响应方：接收 CLIENT_SETUP，选择版本
	PerspectiveServer Perspective = iota
	// PerspectiveClient 发起方：发送 CLIENT_SETUP，接收 SERVER_SETUP
	PerspectiveClient
)

// String 返回位置名称
func (p Perspective) String() string {
	if p == PerspectiveClient {
		return "client"
	}
	return "server"
}

// Phase 控制流阶段
type Phase int

const (
	// PhaseUninitialized 尚未读取任何字节
	PhaseUninitialized Phase = iota
	// PhaseNegotiating 等待 SETUP 完成
	PhaseNegotiating
	// PhaseEstablished 协商完成，接受订阅与对象
	PhaseEstablished
	// PhaseFailed 传输层判定失败，终态
	PhaseFailed
)

// String 返回阶段名称
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseEstablished:
		return "established"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              队列元素
// ============================================================================

// ObjectPayload 入站队列中的一个对象载荷
type ObjectPayload struct {
	SubscribeID uint64
	GroupID     uint64
	ObjectID    uint64
	Payload     []byte
}

// SubscriptionOutcome 本端发出的订阅收到的应答
type SubscriptionOutcome struct {
	Accepted bool
	Expires  uint64
	Code     uint64
	Reason   string
}

// ConnInfo 连接状态的只读快照，交给订阅注册表使用
type ConnInfo struct {
	ID          string
	Perspective Perspective
	Path        string
	PeerRole    types.Role
}

// ============================================================================
//                              ConnectionState
// ============================================================================

// ConnectionState 每连接可变状态
//
// 所有字段由同一把互斥锁保护。分发器在整个处理器执行期间持有该锁，
// 因此同一连接上的 SETUP、订阅和对象处理严格串行。
type ConnectionState struct {
	mu sync.Mutex

	id          string
	perspective Perspective

	path                        string
	peerRole                    types.Role
	peerRoleSet                 bool
	expectControlStreamShutdown bool
	phase                       Phase

	controlQueue [][]byte
	payloadQueue []ObjectPayload
	outcomes     map[uint64]SubscriptionOutcome

	closed        bool
	controlNotify chan struct{}
	payloadNotify chan struct{}
	established   chan struct{}
}

// NewConnectionState 创建连接状态
func NewConnectionState(p Perspective) *ConnectionState {
	return &ConnectionState{
		id:            uuid.New().String(),
		perspective:   p,
		phase:         PhaseUninitialized,
		outcomes:      make(map[uint64]SubscriptionOutcome),
		controlNotify: make(chan struct{}, 1),
		payloadNotify: make(chan struct{}, 1),
		established:   make(chan struct{}),
	}
}

// ID 返回连接 ID
func (s *ConnectionState) ID() string {
	return s.id
}

// Perspective 返回本端位置
func (s *ConnectionState) Perspective() Perspective {
	return s.perspective
}

// Path 返回协商得到的路径
func (s *ConnectionState) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// PeerRole 返回对端角色，第二个返回值表示是否已协商
func (s *ConnectionState) PeerRole() (types.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerRole, s.peerRoleSet
}

// ExpectControlStreamShutdown 控制流关闭是否属于预期
func (s *ConnectionState) ExpectControlStreamShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectControlStreamShutdown
}

// Phase 返回当前阶段
func (s *ConnectionState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Closed 连接是否已拆除
func (s *ConnectionState) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot 返回只读快照
func (s *ConnectionState) Snapshot() ConnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SubscriptionOutcome 返回订阅应答
func (s *ConnectionState) SubscriptionOutcome(subscribeID uint64) (SubscriptionOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[subscribeID]
	return o, ok
}

// EnqueueControlBuffer 追加一个待发送的控制帧
func (s *ConnectionState) EnqueueControlBuffer(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueControlLocked(b)
}

// AddToQueue 追加一个入站对象载荷
func (s *ConnectionState) AddToQueue(obj ObjectPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addToQueueLocked(obj)
}

// DrainControl 取出所有待发送的控制帧
func (s *ConnectionState) DrainControl() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.controlQueue
	s.controlQueue = nil
	return out
}

// QueuedPayloads 返回入站队列中待取出的对象数
func (s *ConnectionState) QueuedPayloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloadQueue)
}

// DrainPayloads 取出所有入站对象载荷
func (s *ConnectionState) DrainPayloads() []ObjectPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.payloadQueue
	s.payloadQueue = nil
	return out
}

// ControlNotify 有控制帧入队时收到信号，连接拆除时关闭
func (s *ConnectionState) ControlNotify() <-chan struct{} {
	return s.controlNotify
}

// PayloadNotify 有对象载荷入队时收到信号，连接拆除时关闭
func (s *ConnectionState) PayloadNotify() <-chan struct{} {
	return s.payloadNotify
}

// Established 协商完成时关闭
func (s *ConnectionState) Established() <-chan struct{} {
	return s.established
}

// Fail 标记连接失败（终态）
func (s *ConnectionState) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
}

// Close 拆除连接，可重复调用
//
// 之后的入队操作返回 ErrConnectionClosed。
func (s *ConnectionState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.controlQueue = nil
	close(s.controlNotify)
	close(s.payloadNotify)
}

// ============================================================================
//                              加锁后调用的内部方法
// ============================================================================

func (s *ConnectionState) snapshotLocked() ConnInfo {
	return ConnInfo{
		ID:          s.id,
		Perspective: s.perspective,
		Path:        s.path,
		PeerRole:    s.peerRole,
	}
}

func (s *ConnectionState) enqueueControlLocked(b []byte) error {
	if s.closed {
		return ErrConnectionClosed
	}
	s.controlQueue = append(s.controlQueue, b)
	signal(s.controlNotify)
	return nil
}

func (s *ConnectionState) addToQueueLocked(obj ObjectPayload) error {
	if s.closed {
		return ErrConnectionClosed
	}
	s.payloadQueue = append(s.payloadQueue, obj)
	signal(s.payloadNotify)
	return nil
}

func (s *ConnectionState) markEstablishedLocked() {
	s.phase = PhaseEstablished
	close(s.established)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
