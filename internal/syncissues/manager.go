package syncissues

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/megaapi"
)

const (
	// WarningProperty persists whether the issues warning is shown.
	WarningProperty = "stalled_issues_warning"

	warningDelay = 4 * time.Second
)

const warningMessage = "Sync issues detected: your syncs have encountered conflicts that may require your intervention.\n" +
	"Use the \"sync-issues\" command to display them.\n" +
	"This message can be disabled with \"sync-issues --disable-warning\"."

// Manager keeps the list of sync issues up to date from the global sync
// state and warns clients when issues show up.
type Manager struct {
	logger logrus.FieldLogger
	notify func(msg string)

	mu       sync.Mutex
	issues   SyncIssueList
	stalled  bool
	warnings bool

	trigger *DeferredSingleTrigger
}

func NewManager(logger logrus.FieldLogger, notify func(msg string), warnings bool) *Manager {
	return newManager(logger, notify, warnings, warningDelay)
}

func newManager(logger logrus.FieldLogger, notify func(msg string), warnings bool, delay time.Duration) *Manager {
	return &Manager{
		logger:   logger,
		notify:   notify,
		warnings: warnings,
		trigger:  NewDeferredSingleTrigger(delay),
	}
}

func (m *Manager) OnNodesUpdate(api megaapi.API, nodes []*megaapi.Node) {}

func (m *Manager) OnSyncStateChanged(api megaapi.API, s *megaapi.Sync) {}

func (m *Manager) OnGlobalSyncStateChanged(api megaapi.API) {
	if api.IsScanning() || api.IsWaiting() {
		return
	}
	stalled := api.IsSyncStalled()
	m.mu.Lock()
	changed := stalled != m.stalled
	m.stalled = stalled
	m.mu.Unlock()
	if !changed {
		return
	}
	if err := m.Refresh(context.Background(), api); err != nil {
		m.logger.Errorf("Failed to get sync stalls: %v", err)
	}
}

// Refresh replaces the list with the stalls the API reports now.
func (m *Manager) Refresh(ctx context.Context, api megaapi.API) error {
	stalls, err := api.SyncStalls(ctx)
	if err != nil {
		return err
	}
	list := newSyncIssueList(stalls)

	m.mu.Lock()
	m.issues = list
	warn := m.warnings && len(list) > 0 && m.notify != nil
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{"issues": len(list)}).Debug("Sync issues updated")
	if warn {
		m.trigger.Trigger(func() { m.notify(warningMessage) })
	}
	return nil
}

// Issues returns the last list fetched.
func (m *Manager) Issues() SyncIssueList {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(SyncIssueList(nil), m.issues...)
}

func (m *Manager) SetWarnings(enabled bool) {
	m.mu.Lock()
	m.warnings = enabled
	m.mu.Unlock()
}

func (m *Manager) WarningsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warnings
}

func (m *Manager) Stop() {
	m.trigger.Stop()
}

var _ megaapi.GlobalListener = (*Manager)(nil)
