// Package megaapi declares the cloud SDK surface the command layer is built on.
// The SDK owns nodes, transfers and syncs; everything here is consumed as a
// black box through API.
package megaapi

import (
	"context"
	"io"
)

// API is the cloud drive client. Requests that talk to the service take a
// context and block until the SDK reports completion.
type API interface {
	Version() string

	Login(ctx context.Context, email, password string) error
	FastLogin(ctx context.Context, session string) error
	Logout(ctx context.Context, keepSession bool) error
	LocalLogout(ctx context.Context) error
	DumpSession() string
	IsLoggedIn() bool
	MyEmail() string
	FetchNodes(ctx context.Context) error
	AccountDetails(ctx context.Context) (*AccountDetails, error)

	RootNode() *Node
	RubbishNode() *Node
	NodeByHandle(h Handle) *Node
	// NodeByPath resolves path relative to base, or to the root when base is
	// nil or path is absolute.
	NodeByPath(path string, base *Node) *Node
	NodePath(n *Node) string
	Children(n *Node) []*Node
	NumChildren(n *Node) int
	Versions(n *Node) []*Node
	CreateFolder(ctx context.Context, name string, parent *Node) (*Node, error)
	Remove(ctx context.Context, n *Node) error
	RemoveVersions(ctx context.Context, n *Node) error
	Move(ctx context.Context, n, newParent *Node, newName string) error
	Copy(ctx context.Context, n, newParent *Node, newName string) (*Node, error)
	OpenReader(ctx context.Context, n *Node) (io.ReadCloser, error)
	Export(ctx context.Context, n *Node, expireUnix int64, writable bool) (string, error)
	DisableExport(ctx context.Context, n *Node) error
	PublicNode(ctx context.Context, link string) (*Node, error)

	StartDownload(n *Node, localPath string, l TransferListener) error
	StartUpload(localPath string, parent *Node, name string, l TransferListener) error
	CancelTransfer(ctx context.Context, tag int) error
	PauseTransfer(ctx context.Context, tag int, pause bool) error
	PauseTransfers(ctx context.Context, pause bool, direction TransferType) error
	AreTransfersPaused(direction TransferType) bool
	Transfers(direction TransferType) []*Transfer
	TransferByTag(tag int) *Transfer
	SetMaxDownloadSpeed(bytesPerSecond int64)
	SetMaxUploadSpeed(bytesPerSecond int64)
	MaxDownloadSpeed() int64
	MaxUploadSpeed() int64
	SetMaxConnections(direction TransferType, n int) error
	MaxConnections(direction TransferType) int

	SyncFolder(ctx context.Context, localPath string, n *Node) (*Sync, error)
	Syncs() []*Sync
	SetSyncRunState(ctx context.Context, id Handle, state SyncRunState) error
	RemoveSync(ctx context.Context, id Handle) error
	SyncStalls(ctx context.Context) ([]SyncStall, error)
	IsSyncStalled() bool
	IsScanning() bool
	IsWaiting() bool

	SetBackup(ctx context.Context, localPath string, n *Node, period int64, cronPeriod string, numBackups int) (*Backup, error)
	Backups() []*Backup
	RemoveBackup(ctx context.Context, tag int) error
	AbortCurrentBackup(ctx context.Context, tag int) error

	SetLRUCacheSize(n uint64)
	SetExportedFoldersSDKs(n uint64)

	AddTransferListener(l TransferListener)
	RemoveTransferListener(l TransferListener)
	AddGlobalListener(l GlobalListener)
	RemoveGlobalListener(l GlobalListener)
}

type GlobalListener interface {
	OnNodesUpdate(api API, nodes []*Node)
	OnSyncStateChanged(api API, s *Sync)
	OnGlobalSyncStateChanged(api API)
}
