package binding

import (
	"strings"

	"github.com/bluefermion/annotator/internal/model"
)

// DOMPath renders ancestors (innermost first) as "tag#id.class > ..." from the
// outermost element down to the element itself. The walk stops at <body>,
// which is not included.
func DOMPath(ancestors []model.DOMNode) string {
	var parts []string
	for _, n := range ancestors {
		tag := strings.ToLower(strings.TrimSpace(n.Tag))
		if tag == "body" || tag == "html" {
			break
		}
		if tag == "" {
			continue
		}
		parts = append(parts, nodeSelector(tag, n))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func nodeSelector(tag string, n model.DOMNode) string {
	var b strings.Builder
	b.WriteString(tag)
	if id := strings.TrimSpace(n.ID); id != "" {
		b.WriteString("#")
		b.WriteString(id)
	}
	for _, c := range n.Classes {
		if c = strings.TrimSpace(c); c != "" {
			b.WriteString(".")
			b.WriteString(c)
		}
	}
	return b.String()
}
