// Package publicassets holds the form page served at /.
package publicassets

import (
	"embed"
	"io/fs"
)

//go:embed web
var files embed.FS

// FS returns the page files rooted at the web directory.
func FS() fs.FS {
	sub, err := fs.Sub(files, "web")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return sub
}
