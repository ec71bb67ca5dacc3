package megaapi

type TransferType int

const (
	TransferDownload TransferType = iota
	TransferUpload
)

func (t TransferType) String() string {
	if t == TransferUpload {
		return "upload"
	}
	return "download"
}

type TransferState int

const (
	TransferStateNone TransferState = iota
	TransferStateQueued
	TransferStateActive
	TransferStatePaused
	TransferStateRetrying
	TransferStateCompleting
	TransferStateCompleted
	TransferStateCancelled
	TransferStateFailed
)

var transferStateNames = [...]string{
	"NONE",
	"QUEUED",
	"ACTIVE",
	"PAUSED",
	"RETRYING",
	"COMPLETING",
	"COMPLETED",
	"CANCELLED",
	"FAILED",
}

func (s TransferState) String() string {
	if int(s) < 0 || int(s) >= len(transferStateNames) {
		return "UNKNOWN"
	}
	return transferStateNames[s]
}

func (s TransferState) Finished() bool {
	return s >= TransferStateCompleted
}

// Transfer is an immutable snapshot of a transfer as reported by the SDK.
// Listeners receive a fresh copy on every event.
type Transfer struct {
	Tag               int           `json:"tag"`
	Type              TransferType  `json:"type"`
	State             TransferState `json:"state"`
	Path              string        `json:"path"`
	ParentPath        string        `json:"parentPath"`
	FileName          string        `json:"fileName"`
	NodeHandle        Handle        `json:"nodeHandle"`
	ParentHandle      Handle        `json:"parentHandle"`
	TransferredBytes  int64         `json:"transferredBytes"`
	TotalBytes        int64         `json:"totalBytes"`
	Speed             int64         `json:"speed"`
	StartTime         int64         `json:"startTime"`
	UpdateTime        int64         `json:"updateTime"`
	NumRetry          int           `json:"numRetry"`
	FolderTransferTag int           `json:"folderTransferTag"`
	IsFolderTransfer  bool          `json:"isFolderTransfer"`
	IsSyncTransfer    bool          `json:"isSyncTransfer"`
	IsBackupTransfer  bool          `json:"isBackupTransfer"`
	LastError         ErrorCode     `json:"lastError"`
	AppData           string        `json:"appData,omitempty"`
	PublicLink        string        `json:"publicLink,omitempty"`
}

func (t *Transfer) Copy() *Transfer {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (t *Transfer) IsChild() bool {
	return t.FolderTransferTag > 0
}

// TransferListener receives transfer events. Implementations must not block
// for long since events are delivered from the transfer goroutine.
type TransferListener interface {
	OnTransferStart(api API, t *Transfer)
	OnTransferUpdate(api API, t *Transfer)
	OnTransferFinish(api API, t *Transfer, err error)
	OnTransferTemporaryError(api API, t *Transfer, err error)
}

// TransferListenerFuncs adapts plain functions to TransferListener. Nil
// fields are ignored.
type TransferListenerFuncs struct {
	Start          func(api API, t *Transfer)
	Update         func(api API, t *Transfer)
	Finish         func(api API, t *Transfer, err error)
	TemporaryError func(api API, t *Transfer, err error)
}

func (f TransferListenerFuncs) OnTransferStart(api API, t *Transfer) {
	if f.Start != nil {
		f.Start(api, t)
	}
}

func (f TransferListenerFuncs) OnTransferUpdate(api API, t *Transfer) {
	if f.Update != nil {
		f.Update(api, t)
	}
}

func (f TransferListenerFuncs) OnTransferFinish(api API, t *Transfer, err error) {
	if f.Finish != nil {
		f.Finish(api, t, err)
	}
}

func (f TransferListenerFuncs) OnTransferTemporaryError(api API, t *Transfer, err error) {
	if f.TemporaryError != nil {
		f.TemporaryError(api, t, err)
	}
}
