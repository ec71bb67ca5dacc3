package transfers

import (
	"fmt"
	"strings"

	"github.com/cshum/megacmd/internal/cmdline"
)

const objectIDPrefix = "O:"

// DownloadId identifies a top level transfer by the tag the SDK gave it and
// the path or link used to start it. Infos loaded from the database carry
// the ObjectID as path.
type DownloadId struct {
	Tag  int
	Path string
}

func (id DownloadId) ObjectID() string {
	return ObjectID(id.Path)
}

func (id DownloadId) String() string {
	return fmt.Sprintf("[%d:%s]", id.Tag, id.Path)
}

// ObjectID names what a transfer points to so that two downloads of the
// same link share it.
func ObjectID(source string) string {
	if IsObjectID(source) {
		return source
	}
	if cmdline.IsPublicLink(source) {
		if h := cmdline.GetPublicLinkObjectID(source); h != "" {
			return objectIDPrefix + h
		}
	}
	return objectIDPrefix + source
}

func IsObjectID(s string) bool {
	return strings.HasPrefix(s, objectIDPrefix)
}
