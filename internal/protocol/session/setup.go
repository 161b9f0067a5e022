package session

import (
	"fmt"
	"slices"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

// handleClientSetupLocked 服务端处理 CLIENT_SETUP
//
// 选择本端版本在客户端列表中第一次出现的位置 k，并且只使用第 k 组参数。
// 失败时连接状态保持不变。
func (d *Dispatcher) handleClientSetupLocked(state *ConnectionState, m *wire.ClientSetup) error {
	k := m.IndexOf(d.config.Version)
	if k < 0 {
		logger.Warn("客户端不支持本端版本",
			"conn", log.TruncateID(state.id, 8),
			"version", d.config.Version,
			"offered", m.SupportedVersions)
		return fmt.Errorf("%w: local %s not in %v", ErrVersionMismatch, d.config.Version, m.SupportedVersions)
	}

	params, err := m.Offer(k)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	if !params.Role.Valid() {
		return fmt.Errorf("%w: invalid role %d", ErrMalformedSetup, uint64(params.Role))
	}

	reply, err := wire.Marshal(&wire.ServerSetup{
		SelectedVersion: d.config.Version,
		Parameters:      []wire.ServerSetupParameters{{Role: types.RolePublisher}},
	})
	if err != nil {
		return err
	}
	if err := state.enqueueControlLocked(reply); err != nil {
		return err
	}

	state.path = params.Path
	state.peerRole = params.Role
	state.peerRoleSet = true
	// 服务端保持控制流打开
	state.expectControlStreamShutdown = false
	state.markEstablishedLocked()

	logger.Debug("收到 CLIENT_SETUP",
		"conn", log.TruncateID(state.id, 8),
		"version", d.config.Version,
		"path", params.Path,
		"peerRole", params.Role)
	return nil
}

// handleServerSetupLocked 客户端处理 SERVER_SETUP
func (d *Dispatcher) handleServerSetupLocked(state *ConnectionState, m *wire.ServerSetup) error {
	if state.path != "" {
		// 本端逻辑错误而非对端行为，按可恢复错误上报
		logger.Error("客户端连接状态中存在路径", "conn", log.TruncateID(state.id, 8), "path", state.path)
		return fmt.Errorf("%w: server must not use the path parameter", ErrMalformedSetup)
	}
	if len(m.Parameters) == 0 {
		return fmt.Errorf("%w: SERVER_SETUP sent no parameters, requires at least role parameter", ErrMalformedSetup)
	}
	if m.SelectedVersion != 0 && !slices.Contains(d.config.Versions(), m.SelectedVersion) {
		return fmt.Errorf("%w: server selected %s, offered %v", ErrVersionMismatch, m.SelectedVersion, d.config.Versions())
	}
	if role := m.Parameters[0].Role; !role.Valid() {
		return fmt.Errorf("%w: invalid role %d", ErrMalformedSetup, uint64(role))
	}

	state.peerRole = m.Parameters[0].Role
	state.peerRoleSet = true
	state.expectControlStreamShutdown = true
	state.markEstablishedLocked()

	logger.Debug("收到 SERVER_SETUP",
		"conn", log.TruncateID(state.id, 8),
		"version", m.SelectedVersion,
		"peerRole", state.peerRole)
	return nil
}

// BuildClientSetup 构造客户端 SETUP，每个版本对应一组相同的参数
func (d *Dispatcher) BuildClientSetup(path string, role types.Role) *wire.ClientSetup {
	versions := d.config.Versions()
	m := &wire.ClientSetup{
		SupportedVersions: append([]types.Version(nil), versions...),
		Parameters:        make([]wire.ClientSetupParameters, len(versions)),
	}
	for i := range versions {
		m.Parameters[i] = wire.ClientSetupParameters{Path: path, Role: role}
	}
	return m
}
