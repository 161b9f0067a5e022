package session

import (
	"fmt"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
)

// handleObjectLocked 载荷路由：按到达顺序追加到入站队列，不解析载荷内容
//
// 队列达到上限时丢弃该对象，已入队的对象不受影响。
func (d *Dispatcher) handleObjectLocked(state *ConnectionState, m *wire.ObjectStream) error {
	if limit := d.config.MaxQueuedObjects; limit > 0 && !state.closed && len(state.payloadQueue) >= limit {
		return fmt.Errorf("%w: %d objects pending, subscribe id %d dropped", ErrQueueFull, limit, m.SubscribeID)
	}
	if err := state.addToQueueLocked(ObjectPayload{
		SubscribeID: m.SubscribeID,
		GroupID:     m.GroupID,
		ObjectID:    m.ObjectID,
		Payload:     m.Payload,
	}); err != nil {
		return err
	}
	d.config.Metrics.objectQueued()
	return nil
}
