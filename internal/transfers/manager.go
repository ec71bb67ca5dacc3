package transfers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

const (
	DefaultMaxFinishedInMemory = 9999999
	DefaultFinishedAfterEvict  = 999999
)

// DownloadsManager keeps track of the downloads started from commands so
// they can be listed with "transfers" after they are gone from the SDK.
type DownloadsManager struct {
	mu     sync.Mutex
	logger logrus.FieldLogger

	active        map[int]*TransferInfo
	finished      map[int]*TransferInfo
	finishedQueue []int
	// last updated info per ObjectID
	inMemory  map[string]*TransferInfo
	unhandled map[int]*megaapi.Transfer

	maxFinished int
	evictTo     int

	writer     *IOWriter
	writerOpts []IOWriterOption
}

func NewDownloadsManager(logger logrus.FieldLogger) *DownloadsManager {
	return &DownloadsManager{
		logger:      logger,
		active:      make(map[int]*TransferInfo),
		finished:    make(map[int]*TransferInfo),
		inMemory:    make(map[string]*TransferInfo),
		unhandled:   make(map[int]*megaapi.Transfer),
		maxFinished: DefaultMaxFinishedInMemory,
		evictTo:     DefaultFinishedAfterEvict,
	}
}

// SetLimits sets how many finished infos are kept in memory and how many
// remain once that limit is hit.
func (m *DownloadsManager) SetLimits(maxFinished, evictTo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFinished = maxFinished
	m.evictTo = min(evictTo, maxFinished)
}

func (m *DownloadsManager) SetWriterOptions(opts ...IOWriterOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writerOpts = opts
}

// Start opens the database infos are persisted into.
func (m *DownloadsManager) Start(dbPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writer != nil {
		return nil
	}
	w, err := OpenIOWriter(dbPath, m.logger, m.writerOpts...)
	if err != nil {
		return err
	}
	m.writer = w
	m.logger.WithField("path", dbPath).Debug("Transfers database opened")
	return nil
}

// Shutdown closes the database. Logging out also drops everything that was
// persisted or kept in memory.
func (m *DownloadsManager) Shutdown(loggingOut bool) error {
	m.mu.Lock()
	w := m.writer
	m.writer = nil
	if loggingOut {
		m.resetLocked()
	}
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close(loggingOut)
}

func (m *DownloadsManager) resetLocked() {
	m.active = make(map[int]*TransferInfo)
	m.finished = make(map[int]*TransferInfo)
	m.finishedQueue = nil
	m.inMemory = make(map[string]*TransferInfo)
	m.unhandled = make(map[int]*megaapi.Transfer)
}

func (m *DownloadsManager) persist(info *TransferInfo) {
	if m.writer != nil {
		m.writer.Write(info)
	}
}

// AddNewTopLevelTransfer starts tracking t under the path or link the user
// asked for.
func (m *DownloadsManager) AddNewTopLevelTransfer(api megaapi.API, t *megaapi.Transfer, sourcePath string) *TransferInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(api, t, sourcePath)
}

func (m *DownloadsManager) addLocked(api megaapi.API, t *megaapi.Transfer, sourcePath string) *TransferInfo {
	if info, ok := m.active[t.Tag]; ok {
		return info
	}
	delete(m.unhandled, t.Tag)
	info := newTransferInfo(api, t, DownloadId{Tag: t.Tag, Path: sourcePath}, nil)
	m.active[t.Tag] = info
	m.inMemory[info.ObjectID()] = info
	m.persist(info)
	return info
}

// RecoverUnhandledTransfer adopts a transfer whose start was seen before it
// was registered.
func (m *DownloadsManager) RecoverUnhandledTransfer(api megaapi.API, t *megaapi.Transfer) *TransferInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoverLocked(api, t)
}

func (m *DownloadsManager) recoverLocked(api megaapi.API, t *megaapi.Transfer) *TransferInfo {
	if _, ok := m.unhandled[t.Tag]; !ok {
		return nil
	}
	return m.addLocked(api, t, sourceOf(api, t))
}

func sourceOf(api megaapi.API, t *megaapi.Transfer) string {
	if t.PublicLink != "" {
		return t.PublicLink
	}
	if t.Type == megaapi.TransferDownload && api != nil {
		if n := api.NodeByHandle(t.NodeHandle); n != nil {
			return api.NodePath(n)
		}
	}
	return t.Path
}

func (m *DownloadsManager) OnTransferStart(api megaapi.API, t *megaapi.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.IsChild() {
		if parent, ok := m.active[t.FolderTransferTag]; ok {
			m.persist(parent.OnSubTransferStarted(api, t))
			m.persist(parent)
		}
		return
	}
	if _, ok := m.active[t.Tag]; ok {
		return
	}
	if _, ok := m.finished[t.Tag]; ok {
		return
	}
	m.unhandled[t.Tag] = t.Copy()
}

func (m *DownloadsManager) OnTransferUpdate(api megaapi.API, t *megaapi.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(api, t)
}

func (m *DownloadsManager) updateLocked(api megaapi.API, t *megaapi.Transfer) {
	if t.IsChild() {
		if parent, ok := m.active[t.FolderTransferTag]; ok {
			if sub := parent.OnSubTransferUpdate(api, t); sub != nil {
				m.persist(sub)
			}
		}
		return
	}
	info, ok := m.active[t.Tag]
	if !ok {
		info, ok = m.finished[t.Tag]
	}
	if !ok {
		if info = m.recoverLocked(api, t); info == nil {
			return
		}
	}
	info.OnTransferUpdate(api, t)
	m.inMemory[info.ObjectID()] = info
	m.persist(info)
}

func (m *DownloadsManager) OnTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.IsChild() {
		if parent, ok := m.active[t.FolderTransferTag]; ok {
			if sub := parent.OnSubTransferFinish(api, t, err); sub != nil {
				m.persist(sub)
			}
			m.persist(parent)
		}
		return
	}

	info, ok := m.active[t.Tag]
	if !ok {
		info = m.recoverLocked(api, t)
	}
	if info == nil {
		return
	}
	info.OnTransferFinish(api, t, err)
	m.persist(info)
	delete(m.active, t.Tag)
	m.finished[t.Tag] = info
	m.finishedQueue = append(m.finishedQueue, t.Tag)
	m.evictLocked()

	m.updateLocked(api, t)
	if t.State == megaapi.TransferStateCancelled && m.writer != nil {
		m.writer.Remove(info)
	}
}

// evictLocked forgets the oldest finished infos once there are too many.
// They remain in the database.
func (m *DownloadsManager) evictLocked() {
	if len(m.finishedQueue) <= m.maxFinished {
		return
	}
	drop := len(m.finishedQueue) - m.evictTo
	for _, tag := range m.finishedQueue[:drop] {
		info, ok := m.finished[tag]
		if !ok {
			continue
		}
		delete(m.finished, tag)
		if m.inMemory[info.ObjectID()] == info {
			delete(m.inMemory, info.ObjectID())
		}
	}
	m.finishedQueue = append([]int(nil), m.finishedQueue[drop:]...)
	m.logger.WithField("evicted", drop).Debug("Evicted finished transfers from memory")
}

func (m *DownloadsManager) Active() []*TransferInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedInfos(m.active)
}

func (m *DownloadsManager) Finished() []*TransferInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedInfos(m.finished)
}

func sortedInfos(infos map[int]*TransferInfo) []*TransferInfo {
	out := make([]*TransferInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.Tag < out[j].id.Tag })
	return out
}

// PrintAll writes the active and finished infos. --limit caps how many of
// each are printed.
func (m *DownloadsManager) PrintAll(w io.Writer, opts cmdline.Options, flags cmdline.Flags) {
	limit := opts.GetInt("limit", 0)
	showSubs := flags.Has("show-subtransfers")
	fopts := format.OptionsFrom(opts)

	printSection := func(title string, infos []*TransferInfo) {
		fmt.Fprintf(w, "  -----   %s -------- \n", title)
		for i, info := range infos {
			if limit > 0 && i >= limit {
				fmt.Fprintf(w, " ...  (%d more)\n", len(infos)-limit)
				break
			}
			fmt.Fprintf(w, "%s  ----> \n", info.id)
			info.Print(w, fopts, true, showSubs)
		}
	}
	printSection("ACTIVE", m.Active())
	printSection("FINISHED", m.Finished())
}

// Lookup finds an info by ObjectID or by tag. ObjectIDs not in memory are
// looked up in the database.
func (m *DownloadsManager) Lookup(ctx context.Context, objectIDOrTag string) (*TransferInfo, error) {
	m.mu.Lock()
	if IsObjectID(objectIDOrTag) {
		info, ok := m.inMemory[objectIDOrTag]
		w := m.writer
		m.mu.Unlock()
		if ok {
			return info, nil
		}
		if w == nil {
			return nil, nil
		}
		return w.Read(ctx, objectIDOrTag)
	}
	defer m.mu.Unlock()
	tag, err := strconv.Atoi(objectIDOrTag)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer tag %q", objectIDOrTag)
	}
	if info, ok := m.active[tag]; ok {
		return info, nil
	}
	return m.finished[tag], nil
}

// PrintOne writes the info found by ObjectID or tag and reports whether it
// was found.
func (m *DownloadsManager) PrintOne(ctx context.Context, w io.Writer, objectIDOrTag string, opts cmdline.Options, flags cmdline.Flags) (bool, error) {
	info, err := m.Lookup(ctx, objectIDOrTag)
	if err != nil {
		return false, err
	}
	if info == nil {
		fmt.Fprintf(w, "%s NOT FOUND\n", objectIDOrTag)
		return false, nil
	}
	fmt.Fprintf(w, "%s  ----> \n", info.id)
	info.Print(w, format.OptionsFrom(opts), true, flags.Has("show-subtransfers"))
	return true, nil
}

// Purge forgets every finished info, in memory and in the database. Active
// ones keep being tracked and are written again from scratch.
func (m *DownloadsManager) Purge() error {
	m.mu.Lock()
	for tag, info := range m.finished {
		if m.inMemory[info.ObjectID()] == info {
			delete(m.inMemory, info.ObjectID())
		}
		delete(m.finished, tag)
	}
	m.finishedQueue = nil
	active := make([]*TransferInfo, 0, len(m.active))
	for _, info := range m.active {
		active = append(active, info)
	}
	w := m.writer
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Purge(active...)
}
