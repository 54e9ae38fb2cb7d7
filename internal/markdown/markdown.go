// Package markdown renders meeting summaries for the terminal.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

type renderer interface {
	Render(string) (string, error)
}

type rendererKey struct {
	width  int
	styled bool
}

var (
	rendererMu sync.Mutex
	renderers  = map[rendererKey]renderer{}
)

// Render formats markdown text for terminal output. Styled output uses
// glamour's dark theme; otherwise the ASCII theme is used. If rendering fails
// the normalized input is returned unchanged.
func Render(width int, styled bool, input string) string {
	value := internalstrings.TrimTrailingNewlines(internalstrings.NormalizeNewlines(input))
	if strings.TrimSpace(value) == "" {
		return ""
	}
	if width < 1 {
		width = 1
	}

	rendered, ok := safeRender(markdownRenderer(rendererKey{width: width, styled: styled}), value)
	if !ok {
		return value
	}
	rendered = internalstrings.TrimTrailingNewlines(rendered)
	if strings.TrimSpace(rendered) == "" {
		return value
	}
	return rendered
}

func safeRender(r renderer, value string) (rendered string, ok bool) {
	if r == nil {
		return "", false
	}
	defer func() {
		if recover() != nil {
			rendered, ok = "", false
		}
	}()
	out, err := r.Render(value)
	if err != nil {
		return "", false
	}
	return out, true
}

func markdownRenderer(key rendererKey) renderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if cached, ok := renderers[key]; ok {
		return cached
	}
	style := styles.ASCIIStyleConfig
	if key.styled {
		style = styles.DarkStyleConfig
	}
	style.Item.BlockPrefix = "- "
	created, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(key.width),
	)
	if err != nil {
		return nil
	}
	renderers[key] = created
	return created
}
