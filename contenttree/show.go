package contenttree

import (
	"fmt"
	"io"
)

// Show writes an indented rendering of the tree to w, annotating nodes that
// carry copy or delete markers.
func (d *Dir) Show(w io.Writer) error {
	p := &printer{w: w, indent: "  "}
	p.dir(d, "", "")
	return p.err
}

type printer struct {
	w      io.Writer
	indent string
	err    error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) dir(d *Dir, label, current string) {
	if d.CapturedAt != nil {
		p.printf("%s[TIME: %s]\n", current, d.CapturedAt.Format(TimeLayout))
	}
	if label != "" {
		p.printf("%s%s\n", current, label)
	}
	p.markers(current, d.CopyDestination, d.ToBeDeleted)

	next := current + p.indent
	for _, sub := range d.Dirs {
		p.dir(sub, sub.Name+"/", next)
	}
	for _, f := range d.Files {
		p.printf("%s%s  - %s\n", next, f.Name, f.Hash)
		p.markers(next, f.CopyDestination, f.ToBeDeleted)
	}
}

func (p *printer) markers(current string, copyDestination *Dir, toBeDeleted bool) {
	if copyDestination != nil {
		target := copyDestination.RelativePath()
		if target == "" {
			target = "."
		}
		p.printf("%s [COPY to %s]\n", current, target)
	}
	if toBeDeleted {
		p.printf("%s [DELETE]\n", current)
	}
}
