package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LocalFile is an entry found under a walked root. RelPath uses forward
// slashes.
type LocalFile struct {
	RelPath string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// GetLocalFiles lists every file and folder under rootPath, parents before
// their children. The root itself is not included.
func GetLocalFiles(rootPath string) ([]LocalFile, error) {
	var files []LocalFile

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath {
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, LocalFile{
			RelPath: filepath.ToSlash(relPath),
			Size:    info.Size(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		})
		return nil
	})

	sort.SliceStable(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, err
}

// TotalSize adds up the size of the regular files in files.
func TotalSize(files []LocalFile) int64 {
	var total int64
	for _, f := range files {
		if !f.IsDir {
			total += f.Size
		}
	}
	return total
}

// ContentFingerprint is the md5 of the file contents.
func ContentFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// QuickFingerprint identifies a file version by size and modification time.
func QuickFingerprint(info os.FileInfo) string {
	return fmt.Sprintf("%x.%x", info.Size(), info.ModTime().Unix())
}
