package fs

import "io/fs"

// File represents an open file handle used to stream file content while
// hashing, copying, or uploading.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}
