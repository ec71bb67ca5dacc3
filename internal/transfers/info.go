package transfers

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

// TransferInfo follows a top level transfer, or one of the files of a
// folder transfer, across its events. It outlives the SDK transfer: once
// finished it stays in memory and in the database.
type TransferInfo struct {
	mu sync.Mutex

	id         DownloadId
	transfer   *megaapi.Transfer
	sourcePath string
	destPath   string
	resolved   bool

	subStarted int
	subOK      int
	subFail    int
	finalError megaapi.ErrorCode

	subs   map[int]*TransferInfo
	parent *TransferInfo

	lastUpdate time.Time
	dbID       int64
}

func newTransferInfo(api megaapi.API, t *megaapi.Transfer, id DownloadId, parent *TransferInfo) *TransferInfo {
	info := &TransferInfo{
		id:     id,
		parent: parent,
		subs:   make(map[int]*TransferInfo),
	}
	info.OnTransferUpdate(api, t)
	return info
}

func (ti *TransferInfo) ID() DownloadId {
	return ti.id
}

func (ti *TransferInfo) ObjectID() string {
	return ti.id.ObjectID()
}

func (ti *TransferInfo) Parent() *TransferInfo {
	return ti.parent
}

// OnTransferUpdate stores a new snapshot. The source path is resolved on the
// first update while the SDK still knows the node; links keep the path the
// transfer was started with.
func (ti *TransferInfo) OnTransferUpdate(api megaapi.API, t *megaapi.Transfer) {
	if t == nil {
		return
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if !ti.resolved {
		ti.sourcePath, ti.destPath = resolvePaths(api, t, ti.id.Path)
		ti.resolved = api != nil
	}
	ti.transfer = t.Copy()
	ti.lastUpdate = time.Now()
}

func resolvePaths(api megaapi.API, t *megaapi.Transfer, fallback string) (source, dest string) {
	if api == nil {
		if t.Type == megaapi.TransferUpload {
			return t.ParentPath + t.FileName, ""
		}
		return fallback, ""
	}
	if t.Type == megaapi.TransferUpload {
		if parent := api.NodeByHandle(t.ParentHandle); parent != nil {
			dest = api.NodePath(parent)
			if dest != "/" {
				dest += "/"
			}
			dest += t.FileName
		}
		return t.ParentPath + t.FileName, dest
	}
	if n := api.NodeByHandle(t.NodeHandle); n != nil {
		if p := api.NodePath(n); p != "" {
			return p, ""
		}
	}
	if t.PublicLink != "" && fallback == "" {
		return t.PublicLink, ""
	}
	return fallback, ""
}

// OnTransferFinish records the result of a top level transfer, or of a
// sub-transfer when called on a sub-info.
func (ti *TransferInfo) OnTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) {
	ti.mu.Lock()
	ti.finalError = megaapi.Code(err)
	ti.mu.Unlock()
	ti.OnTransferUpdate(api, t)
}

func (ti *TransferInfo) OnSubTransferStarted(api megaapi.API, t *megaapi.Transfer) *TransferInfo {
	sub := newTransferInfo(api, t, DownloadId{Tag: t.Tag, Path: t.Path}, ti)
	ti.mu.Lock()
	ti.subStarted++
	ti.subs[t.Tag] = sub
	ti.lastUpdate = time.Now()
	ti.mu.Unlock()
	return sub
}

func (ti *TransferInfo) OnSubTransferUpdate(api megaapi.API, t *megaapi.Transfer) *TransferInfo {
	ti.mu.Lock()
	sub, ok := ti.subs[t.Tag]
	ti.mu.Unlock()
	if !ok {
		return nil
	}
	sub.OnTransferUpdate(api, t)
	return sub
}

func (ti *TransferInfo) OnSubTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) *TransferInfo {
	ti.mu.Lock()
	if err == nil {
		ti.subOK++
	} else {
		ti.subFail++
	}
	sub, ok := ti.subs[t.Tag]
	ti.lastUpdate = time.Now()
	ti.mu.Unlock()
	if !ok {
		return nil
	}
	sub.OnTransferFinish(api, t, err)
	return sub
}

// Snapshot returns a copy of the last transfer state received.
func (ti *TransferInfo) Snapshot() *megaapi.Transfer {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.transfer.Copy()
}

func (ti *TransferInfo) State() megaapi.TransferState {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.transfer == nil {
		return megaapi.TransferStateNone
	}
	return ti.transfer.State
}

func (ti *TransferInfo) IsFinished() bool {
	return ti.State().Finished()
}

func (ti *TransferInfo) FinalError() megaapi.ErrorCode {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.finalError
}

// SubCounters returns how many sub-transfers started, succeeded and failed.
func (ti *TransferInfo) SubCounters() (started, ok, failed int) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.subStarted, ti.subOK, ti.subFail
}

func (ti *TransferInfo) Subs() []*TransferInfo {
	ti.mu.Lock()
	tags := make([]int, 0, len(ti.subs))
	for tag := range ti.subs {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	out := make([]*TransferInfo, len(tags))
	for i, tag := range tags {
		out[i] = ti.subs[tag]
	}
	ti.mu.Unlock()
	return out
}

func (ti *TransferInfo) LastUpdate() time.Time {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.lastUpdate
}

func (ti *TransferInfo) setDBID(id int64) {
	ti.mu.Lock()
	ti.dbID = id
	ti.mu.Unlock()
}

func (ti *TransferInfo) getDBID() int64 {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.dbID
}

// typeSymbol is the direction arrow plus a mark for sync and backup
// transfers.
func typeSymbol(t *megaapi.Transfer) string {
	s := "⇓"
	if t.Type == megaapi.TransferUpload {
		s = "⇑"
	}
	switch {
	case t.IsSyncTransfer:
		s += "⇵"
	case t.IsBackupTransfer:
		s += "⏫"
	}
	return s
}

// AddTransferColumns adds the columns describing t. Downloads print the
// source as given since the transfer only knows where it lands.
func AddTransferColumns(cd *format.ColumnDisplayer, t *megaapi.Transfer, source, dest string, printState bool) {
	cd.AddValue("TYPE", typeSymbol(t), false)
	cd.AddValue("TAG", strconv.Itoa(t.Tag), false)
	if t.Type == megaapi.TransferDownload {
		cd.AddValue("SOURCEPATH", source, false)
		cd.AddValue("DESTINYPATH", t.ParentPath+t.FileName, false)
	} else {
		cd.AddValue("SOURCEPATH", t.ParentPath+t.FileName, false)
		if dest == "" {
			dest = "---------"
		}
		cd.AddValue("DESTINYPATH", dest, false)
	}

	percent := 0.0
	if t.TotalBytes != 0 {
		percent = float64(t.TransferredBytes) / float64(t.TotalBytes)
	}
	cd.AddValue("PROGRESS", format.PercentageToText(percent)+" of "+
		format.FixLengthString(format.SizeToText(t.TotalBytes, true, true), 10, ' ', true), false)

	if printState {
		cd.AddValue("STATE", t.State.String(), false)
	}
	cd.AddValue("TRANSFERRED", strconv.FormatInt(t.TransferredBytes, 10), false)
	cd.AddValue("TOTAL", strconv.FormatInt(t.TotalBytes, 10), false)
}

func (ti *TransferInfo) addToColumnDisplayer(cd *format.ColumnDisplayer) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.transfer == nil {
		return
	}
	top := ti.transfer.FolderTransferTag <= 0
	if top {
		cd.AddValue("OBJECT_ID", ti.id.ObjectID(), false)
	}
	AddTransferColumns(cd, ti.transfer, ti.sourcePath, ti.destPath, true)
	if top {
		cd.AddValue("SUB_STARTED", strconv.Itoa(ti.subStarted), false)
		cd.AddValue("SUB_OK", strconv.Itoa(ti.subOK), false)
		cd.AddValue("SUB_FAIL", strconv.Itoa(ti.subFail), false)
	}
	cd.AddValue("ERROR_CODE", ti.finalError.Error(), false)
}

// Print writes the info as a one row table followed, when asked, by a table
// of its sub-transfers.
func (ti *TransferInfo) Print(w io.Writer, opts format.Options, printHeader, showSubs bool) {
	cd := format.NewColumnDisplayer(opts)
	ti.addToColumnDisplayer(cd)
	cd.Print(w, printHeader)

	subs := ti.Subs()
	if !showSubs || len(subs) == 0 {
		return
	}
	cdSubs := format.NewColumnDisplayer(opts)
	for _, sub := range subs {
		cdSubs.AddValue("SUBTRANSFER", " SUBTRANSFER "+strconv.Itoa(sub.id.Tag), false)
		sub.addToColumnDisplayer(cdSubs)
	}
	cdSubs.Print(w, true)
	io.WriteString(w, "^^^^^^^^^^^^^^^^^^^^^^^\n\n")
}

// record is what the database keeps of an info.
type record struct {
	Transfer   *megaapi.Transfer `json:"transfer"`
	SourcePath string            `json:"sourcePath"`
	DestPath   string            `json:"destPath,omitempty"`
	SubStarted int               `json:"subStarted"`
	SubOK      int               `json:"subOk"`
	SubFail    int               `json:"subFail"`
	FinalError megaapi.ErrorCode `json:"finalError"`
}

func (ti *TransferInfo) marshal() (tag int, lastUpdate int64, data []byte, err error) {
	ti.mu.Lock()
	r := record{
		Transfer:   ti.transfer.Copy(),
		SourcePath: ti.sourcePath,
		DestPath:   ti.destPath,
		SubStarted: ti.subStarted,
		SubOK:      ti.subOK,
		SubFail:    ti.subFail,
		FinalError: ti.finalError,
	}
	tag, lastUpdate = ti.id.Tag, ti.lastUpdate.UnixMilli()
	ti.mu.Unlock()
	data, err = json.Marshal(r)
	return
}

func unmarshalInfo(dbID int64, objectID string, tag int, lastUpdate int64, data []byte, parent *TransferInfo) (*TransferInfo, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	path := objectID
	if parent != nil && r.Transfer != nil {
		path = r.Transfer.Path
	}
	return &TransferInfo{
		id:         DownloadId{Tag: tag, Path: path},
		transfer:   r.Transfer,
		sourcePath: r.SourcePath,
		destPath:   r.DestPath,
		resolved:   true,
		subStarted: r.SubStarted,
		subOK:      r.SubOK,
		subFail:    r.SubFail,
		finalError: r.FinalError,
		subs:       make(map[int]*TransferInfo),
		parent:     parent,
		lastUpdate: time.UnixMilli(lastUpdate),
		dbID:       dbID,
	}, nil
}
