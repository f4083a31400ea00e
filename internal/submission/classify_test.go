package submission

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-handin/internal/ident"
)

type fakeRoster map[string]string

func (r fakeRoster) Has(id string) bool { _, ok := r[id]; return ok }
func (r fakeRoster) Name(id string) string {
	return r[id]
}

var class = fakeRoster{
	"123456789": "Ann",
	"222222222": "Bob",
	"333333333": "Cid",
}

func body(fill byte) []byte { return bytes.Repeat([]byte{fill}, 200) }

func newClassifier(opts ...Option) *Classifier { return NewClassifier(ident.New(9), opts...) }

func TestIdenticalBytesShareAGroupRegardlessOfName(t *testing.T) {
	res := newClassifier().Classify([]File{
		NewFile("123456789_a.pdf", body('A')),
		NewFile("123456789_b.pdf", body('A')),
	}, class)

	dups := res.Duplicates()
	require.Len(t, dups, 1)
	assert.Equal(t, []Member{
		{ID: "123456789", Filename: "123456789_a.pdf"},
		{ID: "123456789", Filename: "123456789_b.pdf"},
	}, dups[0].Members)
	assert.True(t, dups[0].SingleSubmitter())
	assert.Equal(t, []string{"123456789"}, res.SubmittedIDs)
}

func TestOneByteDifferenceIsNotADuplicate(t *testing.T) {
	other := body('A')
	other[len(other)-1] = 'B'
	res := newClassifier().Classify([]File{
		NewFile("123456789_a.pdf", body('A')),
		NewFile("222222222_b.pdf", other),
	}, class)

	assert.Empty(t, res.Duplicates())
	assert.Len(t, res.Groups, 2)
}

func TestCrossStudentDuplicateGroup(t *testing.T) {
	res := newClassifier().Classify([]File{
		NewFile("123456789.docx", body('X')),
		NewFile("222222222.docx", body('Y')),
		NewFile("333333333.docx", body('X')),
	}, class)

	dups := res.Duplicates()
	require.Len(t, dups, 1)
	assert.False(t, dups[0].SingleSubmitter())
	assert.Equal(t, Digest(body('X')), dups[0].Digest)
	assert.Equal(t, []string{"123456789", "222222222", "333333333"}, res.SubmittedIDs)
}

func TestSmallFilesAreAnomalousAndNeverHashed(t *testing.T) {
	tiny := bytes.Repeat([]byte{'z'}, 50)
	res := newClassifier().Classify([]File{
		NewFile("123456789.pdf", tiny),
		NewFile("222222222.pdf", tiny),
	}, class)

	assert.Empty(t, res.Groups)
	require.Len(t, res.Anomalous, 2)
	assert.Equal(t, Anomaly{ID: "123456789", Name: "Ann", Filename: "123456789.pdf", Size: 50}, res.Anomalous[0])
	assert.ElementsMatch(t, []string{"123456789", "222222222"}, res.SubmittedIDs)
}

func TestMinSizeIsConfigurable(t *testing.T) {
	res := newClassifier(WithMinSize(10)).Classify([]File{NewFile("123456789.txt", []byte("0123456789ab"))}, class)
	assert.Empty(t, res.Anomalous)
	assert.Len(t, res.Groups, 1)
}

func TestUnmatchedFilesAreExcludedEverywhere(t *testing.T) {
	res := newClassifier().Classify([]File{
		NewFile("homework.pdf", body('A')),
		NewFile("999999999.pdf", body('A')),
		NewFile("~$123456789.docx", body('A')),
		NewFile(".123456789.swp", []byte("x")),
	}, class)

	assert.Empty(t, res.SubmittedIDs)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.Anomalous)
	assert.Empty(t, res.FilesByName)
	assert.Equal(t, []Ignored{
		{Filename: "homework.pdf", Reason: ReasonNoIdentifier},
		{Filename: "999999999.pdf", Reason: ReasonNotOnRoster, Detail: "999999999"},
		{Filename: "~$123456789.docx", Reason: ReasonHidden},
		{Filename: ".123456789.swp", Reason: ReasonHidden},
	}, res.Ignored)
}

func TestUnreadableFilesAreExcluded(t *testing.T) {
	bad := File{Name: "123456789.pdf", Err: &FileReadError{Name: "123456789.pdf", Err: errors.New("boom")}}
	res := newClassifier().Classify([]File{bad}, class)
	assert.Empty(t, res.SubmittedIDs)
	require.Len(t, res.Ignored, 1)
	assert.Equal(t, ReasonUnreadable, res.Ignored[0].Reason)
}

func TestEveryAcceptedFileLandsInExactlyOnePlace(t *testing.T) {
	files := []File{
		NewFile("123456789_1.pdf", body('A')),
		NewFile("123456789_2.pdf", []byte("tiny")),
		NewFile("222222222.pdf", body('A')),
		NewFile("333333333.pdf", body('C')),
		NewFile("notes.txt", body('D')),
	}
	res := newClassifier().Classify(files, class)

	placed := map[string]int{}
	for _, a := range res.Anomalous {
		placed[a.Filename]++
	}
	for _, g := range res.Groups {
		for _, m := range g.Members {
			placed[m.Filename]++
		}
	}
	assert.Len(t, placed, len(res.Accepted))
	for _, name := range res.Accepted {
		assert.Equal(t, 1, placed[name], name)
	}
}

func TestPDFCandidates(t *testing.T) {
	res := newClassifier().Classify([]File{
		NewFile("123456789.PDF", body('A')),
		NewFile("222222222.docx", body('B')),
		NewFile("333333333.pdf", []byte("small")),
		NewFile("report.pdf", body('C')),
	}, class)
	assert.Equal(t, []string{"123456789.PDF", "333333333.pdf"}, res.PDFCandidates())
}

func TestLaterFileWinsOnSameName(t *testing.T) {
	res := newClassifier().Classify([]File{
		NewFile("123456789.pdf", body('A')),
		NewFile("123456789.pdf", body('B')),
	}, class)
	assert.Equal(t, body('B'), res.FilesByName["123456789.pdf"].Data)
	assert.Equal(t, "123456789", res.FilesByName["123456789.pdf"].ID)
	assert.Equal(t, []string{"123456789.pdf"}, res.PDFCandidates())
}

func TestClassifyIsIdempotent(t *testing.T) {
	files := []File{
		NewFile("123456789.pdf", body('A')),
		NewFile("222222222.pdf", body('A')),
		NewFile("333333333.pdf", []byte("x")),
	}
	c := newClassifier()
	assert.Equal(t, c.Classify(files, class), c.Classify(files, class))
	assert.Empty(t, files[0].ID)
}

func TestCustomIgnoredPrefixes(t *testing.T) {
	res := newClassifier(WithIgnoredPrefixes("tmp_")).Classify([]File{
		NewFile("tmp_123456789.pdf", body('A')),
		NewFile(".123456789.pdf", body('A')),
	}, class)
	require.Len(t, res.Ignored, 1)
	assert.Equal(t, ReasonHidden, res.Ignored[0].Reason)
	assert.Equal(t, []string{"123456789"}, res.SubmittedIDs)
}
