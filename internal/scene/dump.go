package scene

import (
	"strings"

	"github.com/valyala/bytebufferpool"
)

// DumpTree renders the subtree of o, one object per line with its
// components, for logs and debugging.
func DumpTree(o *Object) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	dumpObject(buf, o, 0)
	return buf.String()
}

func dumpObject(buf *bytebufferpool.ByteBuffer, o *Object, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteString(o.name)
	buf.WriteString(" [")
	buf.WriteString(o.state.String())
	buf.WriteString("]\n")
	for _, c := range o.components {
		buf.WriteString(indent)
		buf.WriteString("  - ")
		buf.WriteString(c.base().TypeName())
		buf.WriteString(" (")
		buf.WriteString(c.ActivationState().String())
		buf.WriteString(")\n")
	}
	for _, child := range o.children {
		dumpObject(buf, child, depth+1)
	}
}
