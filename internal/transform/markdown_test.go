package transform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransformBasicElements(t *testing.T) {
	t.Parallel()

	m := NewMarkdown()
	md, err := m.Transform(`<div><h2>Section</h2><p>Some <strong>bold</strong> text and a <a href="https://example.com">link</a>.</p></div>`)
	require.NoError(t, err)
	require.Contains(t, md, "## Section")
	require.Contains(t, md, "**bold**")
	require.Contains(t, md, "[link](https://example.com)")
}

func TestTransformKeepsImageReferences(t *testing.T) {
	t.Parallel()

	m := NewMarkdown()
	md, err := m.Transform(`<p>before</p><img src="images/20240103-x-abcd1234.png" alt="chart"><p>after</p>`)
	require.NoError(t, err)
	require.Contains(t, md, "images/20240103-x-abcd1234.png")
}

func TestTransformIsDeterministic(t *testing.T) {
	t.Parallel()

	m := NewMarkdown()
	const html = `<p>one</p><ul><li>a</li><li>b</li></ul>`
	first, err := m.Transform(html)
	require.NoError(t, err)
	second, err := m.Transform(html)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
