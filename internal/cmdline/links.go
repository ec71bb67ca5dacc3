package cmdline

import "strings"

// Public links come in two flavours:
//
//	https://mega.nz/#!ph!key        https://mega.nz/file/ph#key
//	https://mega.nz/#F!ph!key       https://mega.nz/folder/ph#key
//	https://mega.nz/#F!ph!key!h     https://mega.nz/folder/ph#key/folder/h
//	https://mega.nz/#F!ph!key?h     https://mega.nz/folder/ph#key/file/h

func IsPublicLink(link string) bool {
	return strings.HasPrefix(link, "http") &&
		(strings.Contains(link, "#") || strings.Contains(link, "/file/") || strings.Contains(link, "/folder/"))
}

func IsEncryptedLink(link string) bool {
	if !strings.HasPrefix(link, "http") {
		return false
	}
	i := strings.Index(link, "#")
	return i >= 0 && strings.HasPrefix(link[i:], "#P!")
}

func IsFolderLink(link string) bool {
	return strings.Contains(link, "/folder/") || strings.Contains(link, "#F!")
}

var linkSeparators = []string{"/folder/", "/file/", "#F!", "#!"}

// splitLink returns the part after the public handle separator and whether
// the link uses the new /file/ /folder/ format.
func splitLink(link string) (rest string, newFormat, ok bool) {
	for i, sep := range linkSeparators {
		if p := strings.Index(link, sep); p >= 0 {
			return link[p+len(sep):], i < 2, true
		}
	}
	return "", false, false
}

// GetPublicLinkHandle returns the public handle of the link, or "" if link is
// not a public link.
func GetPublicLinkHandle(link string) string {
	rest, _, ok := splitLink(link)
	if !ok {
		return ""
	}
	if end := strings.IndexAny(rest, "#/!?"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// GetPublicLinkKey returns the decryption key part of the link.
func GetPublicLinkKey(link string) string {
	rest, newFormat, ok := splitLink(link)
	if !ok {
		return ""
	}
	sep := "!"
	if newFormat {
		sep = "#"
	}
	p := strings.Index(rest, sep)
	if p < 0 {
		return ""
	}
	key := rest[p+1:]
	if end := strings.IndexAny(key, "/!?"); end >= 0 {
		key = key[:end]
	}
	return key
}

// GetPublicLinkObjectID identifies what the link points to: the public
// handle, plus "_<handle>" for a node inside a folder link.
func GetPublicLinkObjectID(link string) string {
	rest, newFormat, ok := splitLink(link)
	if !ok {
		return ""
	}
	end := strings.IndexAny(rest, "#/!")
	if end <= 0 {
		return rest
	}
	ph := rest[:end]
	remaining := rest[end:]
	if len(remaining) <= 1 {
		return ph
	}

	var handle string
	if newFormat {
		for _, sep := range []string{"/folder/", "/file/"} {
			if p := strings.Index(remaining, sep); p >= 0 {
				handle = remaining[p+len(sep):]
				break
			}
		}
	} else {
		// !key!handle for folders, !key?handle for files
		if p := strings.LastIndex(remaining, "?"); p >= 0 {
			handle = remaining[p+1:]
		} else if parts := strings.Split(remaining, "!"); len(parts) == 3 && parts[2] != "" {
			handle = parts[2]
		}
	}

	if handle == "" {
		return ph
	}
	return ph + "_" + handle
}
