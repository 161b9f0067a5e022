package session

import (
	"errors"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
)

// handleSubscribeLocked 订阅准入网关
//
// 准入策略完全由注册表决定。拒绝时向请求方回复 SUBSCRIBE_ERROR，
// 并返回 *AdmissionError；连接不会因此关闭。
func (d *Dispatcher) handleSubscribeLocked(state *ConnectionState, m *wire.Subscribe) error {
	handle, err := d.registry.TryRegisterSubscription(state.snapshotLocked(), m)
	if err != nil {
		d.config.Metrics.observeAdmission(false)

		code := wire.SubscribeErrorInternal
		var coder ErrorCoder
		if errors.As(err, &coder) {
			code = coder.SubscribeErrorCode()
		}

		logger.Warn("订阅被拒绝",
			"conn", log.TruncateID(state.id, 8),
			"subscribeID", m.SubscribeID,
			"track", m.TrackNamespace+"/"+m.TrackName,
			"code", code,
			"error", err)

		reply, merr := wire.Marshal(&wire.SubscribeError{
			SubscribeID: m.SubscribeID,
			Code:        code,
			Reason:      err.Error(),
		})
		if merr == nil {
			merr = state.enqueueControlLocked(reply)
		}
		if merr != nil {
			logger.Warn("SUBSCRIBE_ERROR 入队失败", "conn", log.TruncateID(state.id, 8), "error", merr)
		}

		return &AdmissionError{SubscribeID: m.SubscribeID, Code: code, Err: err}
	}

	d.config.Metrics.observeAdmission(true)

	expires := handle.Expires
	if expires == 0 {
		expires = d.config.SubscriptionExpires
	}
	reply, err := wire.Marshal(&wire.SubscribeOk{
		SubscribeID: m.SubscribeID,
		Expires:     uint64(expires.Milliseconds()),
	})
	if err != nil {
		return err
	}

	logger.Debug("订阅已接受",
		"conn", log.TruncateID(state.id, 8),
		"subscribeID", m.SubscribeID,
		"handle", handle.ID)
	return state.enqueueControlLocked(reply)
}

// handleSubscribeOkLocked 记录本端订阅被接受
func (d *Dispatcher) handleSubscribeOkLocked(state *ConnectionState, m *wire.SubscribeOk) error {
	state.outcomes[m.SubscribeID] = SubscriptionOutcome{Accepted: true, Expires: m.Expires}
	logger.Debug("收到 SUBSCRIBE_OK", "conn", log.TruncateID(state.id, 8), "subscribeID", m.SubscribeID)
	return nil
}

// handleSubscribeErrorLocked 记录本端订阅被拒绝
func (d *Dispatcher) handleSubscribeErrorLocked(state *ConnectionState, m *wire.SubscribeError) error {
	state.outcomes[m.SubscribeID] = SubscriptionOutcome{Code: m.Code, Reason: m.Reason}
	logger.Info("订阅被对端拒绝",
		"conn", log.TruncateID(state.id, 8),
		"subscribeID", m.SubscribeID,
		"code", m.Code,
		"reason", m.Reason)
	return nil
}
