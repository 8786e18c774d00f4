package epub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_HarvestsBodyInDocumentOrder(t *testing.T) {
	page := xhtmlPage("c1", `
<header><p>Running header text</p></header>
<h1>Chapter 1</h1>
<p>It was a dark   night.</p>
<p>12</p>
<p class="footnote">A footnote text.</p>
<p>Visit http://example.com</p>
<div>Short div.</div>
<div>This division carries enough words to count as real body text for sure.</div>
<div class="body"><p>Inner paragraph
 one.</p><p>Inner <em>paragraph</em> two.</p></div>
<script>var x = 1;</script>
<aside><p>Sidebar</p></aside>
<p>Copyright 2020 Someone</p>
<p>“Go,” she said.</p>`)

	got, err := extractText(strings.NewReader(page))
	require.NoError(t, err)

	want := strings.Join([]string{
		"It was a dark night.\n",
		"This division carries enough words to count as real body text for sure.\n",
		"Inner paragraph one.\n",
		"Inner paragraph two.\n",
		"“Go,” she said.\n",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestExtractText_DeniedWrapperJudgesChildrenByOwnClass(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "footnote wrapper",
			body: `<div class="footnotes"><p>Note one.</p><p>Note two.</p><p class="footnote">Own class.</p></div>
<p>Body stays.</p>`,
			want: []string{"Note one.\n", "Note two.\n", "Body stays.\n"},
		},
		{
			name: "header wrapper",
			body: `<div class="chapter-header-block"><p>Firestar padded into the clearing at dawn.</p></div>`,
			want: []string{"Firestar padded into the clearing at dawn.\n"},
		},
		{
			name: "wrapper loose text stays rejected",
			body: `<div class="footer-note">This loose footer sentence is long enough to pass the container length rule.<p>Kept paragraph.</p></div>`,
			want: []string{"Kept paragraph.\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractText(strings.NewReader(xhtmlPage("c2", tt.body)))
			require.NoError(t, err)
			assert.Equal(t, strings.Join(tt.want, "\n"), got)
		})
	}
}

func TestExtractText_KeepsLooseTextAroundNestedBlocks(t *testing.T) {
	page := xhtmlPage("c5", `<div>The warriors waited beneath the <em>great</em> oak for the moon to rise.<div>x</div>Short tail.</div>`)

	got, err := extractText(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "The warriors waited beneath the great oak for the moon to rise.\n", got)
}

func TestExtractText_LongSpanInsideParagraphNotDuplicated(t *testing.T) {
	long := strings.Repeat("quiet forest ", 6)
	page := xhtmlPage("c3", `<p><span>`+long+`</span></p>`)

	got, err := extractText(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long)+"\n", got)
}

func TestNodeText_BreaksBecomeSpaces(t *testing.T) {
	page := xhtmlPage("c4", `<p>line one<br/>line two</p>`)

	got, err := extractText(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "line one line two\n", got)
}
