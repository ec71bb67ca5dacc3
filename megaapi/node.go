package megaapi

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"
)

type Handle uint64

const UndefHandle Handle = ^Handle(0)

// Base64 returns the URL-safe text form of the handle, as shown by
// --show-handles.
func (h Handle) Base64() string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(h))
	return base64.RawURLEncoding.EncodeToString(buf[:6])
}

// ParseHandle reads the text written by String or Base64.
func ParseHandle(s string) (Handle, bool) {
	s = strings.TrimPrefix(s, "H:")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) != 6 {
		return UndefHandle, false
	}
	var buf [8]byte
	copy(buf[:], b)
	return Handle(binary.LittleEndian.Uint64(buf[:])), true
}

func (h Handle) String() string {
	if h == UndefHandle {
		return "UNDEF"
	}
	return "H:" + h.Base64()
}

type NodeType int

const (
	NodeUnknown NodeType = iota - 1
	NodeFile
	NodeFolder
	NodeRoot
	NodeIncoming
	NodeRubbish
)

type Node struct {
	Handle           Handle
	ParentHandle     Handle
	Name             string
	Type             NodeType
	Size             int64
	CreationTime     time.Time
	ModificationTime time.Time
	Fingerprint      string

	Exported     bool
	PublicHandle string
	PublicKey    string
	ExportExpire time.Time
	Writable     bool

	IsVersion bool
}

func (n *Node) IsFile() bool {
	return n != nil && n.Type == NodeFile
}

func (n *Node) IsFolder() bool {
	return n != nil && n.Type != NodeFile && n.Type != NodeUnknown
}

func (n *Node) ExpiredExport() bool {
	return n.Exported && !n.ExportExpire.IsZero() && time.Now().After(n.ExportExpire)
}

type AccountDetails struct {
	StorageUsed  int64
	StorageMax   int64
	TransferUsed int64
	TransferMax  int64
	FileCount    int64
	FolderCount  int64
}
