package query

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/index"
)

// fakeIndex scripts responses and counts calls.
type fakeIndex struct {
	matches []index.Match
	err     error
	queries int
}

func (f *fakeIndex) Upsert(context.Context, index.Entry) error { return nil }

func (f *fakeIndex) Query(_ context.Context, q string, limit int) ([]index.Match, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeIndex) DocCount() (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return uint64(len(f.matches)), nil
}

func (f *fakeIndex) Close() error { return nil }

var _ index.SearchIndex = (*fakeIndex)(nil)

func TestSearch_EmptyQueryRejectedBeforeIndex(t *testing.T) {
	fake := &fakeIndex{}
	svc := NewService(fake, Config{}, nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), q)
		require.Error(t, err)
		assert.Equal(t, errors.QueryInvalidInput, errors.QueryKindOf(err))
	}
	assert.Equal(t, 0, fake.queries, "validation must not touch the index")
}

func TestSearch_MapsMatchesToResults(t *testing.T) {
	fake := &fakeIndex{matches: []index.Match{{
		DocumentID:   "doc-1",
		Score:        1.5,
		Title:        "Annual Report",
		Filename:     "report.pdf",
		Content:      "revenue grew in the third quarter",
		MatchedTerms: []string{"revenue"},
	}}}
	svc := NewService(fake, Config{}, nil)

	results, err := svc.Search(context.Background(), "revenue")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, 1.5, results[0].Score)
	assert.Contains(t, results[0].Snippet, "revenue")
}

func TestSearch_NoMatchesIsEmptySuccess(t *testing.T) {
	svc := NewService(&fakeIndex{}, Config{}, nil)

	results, err := svc.Search(context.Background(), "zebra")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_IndexFailureIsUnavailable(t *testing.T) {
	fake := &fakeIndex{err: stderrors.New("index is closed")}
	svc := NewService(fake, Config{}, nil)

	_, err := svc.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, errors.QueryUnavailable, errors.QueryKindOf(err))
}

func TestSearch_RepeatQueryServedFromCache(t *testing.T) {
	fake := &fakeIndex{matches: []index.Match{{DocumentID: "doc-1", Content: "cached", MatchedTerms: []string{"cached"}}}}
	svc := NewService(fake, Config{CacheTTL: time.Minute}, nil)

	_, err := svc.Search(context.Background(), "Cached")
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "cached")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.queries, "second lookup should hit the cache")
}

func TestBuildSnippet_WindowsAroundFirstMatch(t *testing.T) {
	content := strings.Repeat("x", 300) + " needle " + strings.Repeat("y", 300)

	snippet := buildSnippet(content, []string{"needle"}, 20)

	assert.Contains(t, snippet, "needle")
	assert.True(t, strings.HasPrefix(snippet, "…"))
	assert.True(t, strings.HasSuffix(snippet, "…"))
	assert.LessOrEqual(t, len(snippet), len("needle")+2*20+2*len("…")+2)
}

func TestBuildSnippet_ShortContentUntruncated(t *testing.T) {
	snippet := buildSnippet("short body with needle inside", []string{"needle"}, 120)
	assert.Equal(t, "short body with needle inside", snippet)
}

func TestBuildSnippet_TitleOnlyHitFallsBackToHead(t *testing.T) {
	content := "document body that never mentions the term " + strings.Repeat("z", 400)

	snippet := buildSnippet(content, []string{"quarterly"}, 40)

	assert.True(t, strings.HasPrefix(snippet, "document body"))
	assert.True(t, strings.HasSuffix(snippet, "…"))
}

func TestBuildSnippet_NeverSplitsRunes(t *testing.T) {
	content := strings.Repeat("é", 200) + " needle " + strings.Repeat("ü", 200)

	snippet := buildSnippet(content, []string{"needle"}, 15)

	assert.True(t, utf8ValidString(snippet))
}

func utf8ValidString(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
