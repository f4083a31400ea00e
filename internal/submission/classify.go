package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mind-engage/mindengage-handin/internal/ident"
)

// Roster is the view of the class list the classifier needs.
type Roster interface {
	Has(id string) bool
	Name(id string) string
}

const DefaultMinSize = 100

var DefaultIgnoredPrefixes = []string{"~$", "."}

type Option func(*config)

type config struct {
	minSize  int64
	prefixes []string
}

// WithMinSize sets the byte threshold under which a file is anomalous.
func WithMinSize(n int64) Option { return func(c *config) { c.minSize = n } }

// WithIgnoredPrefixes replaces the filename prefixes treated as temporary or hidden.
func WithIgnoredPrefixes(p ...string) Option { return func(c *config) { c.prefixes = p } }

type Classifier struct {
	ex  *ident.Extractor
	cfg config
}

func NewClassifier(ex *ident.Extractor, opts ...Option) *Classifier {
	cfg := config{minSize: DefaultMinSize, prefixes: DefaultIgnoredPrefixes}
	for _, o := range opts {
		o(&cfg)
	}
	return &Classifier{ex: ex, cfg: cfg}
}

// Classify sorts every file into exactly one of: ignored, anomalous, or one
// digest group. Only files whose name carries a roster identifier count as
// submissions. Inputs are not modified.
func (c *Classifier) Classify(files []File, roster Roster) *Result {
	res := &Result{FilesByName: make(map[string]File)}
	groupIdx := make(map[string]int)
	submitted := make(map[string]bool)

	for _, f := range files {
		if c.hidden(f.Name) {
			res.Ignored = append(res.Ignored, Ignored{Filename: f.Name, Reason: ReasonHidden})
			continue
		}
		if f.Err != nil {
			res.Ignored = append(res.Ignored, Ignored{Filename: f.Name, Reason: ReasonUnreadable, Detail: f.Err.Error()})
			continue
		}
		id, ok := c.ex.Extract(f.Name)
		if !ok {
			res.Ignored = append(res.Ignored, Ignored{Filename: f.Name, Reason: ReasonNoIdentifier})
			continue
		}
		if !roster.Has(id) {
			res.Ignored = append(res.Ignored, Ignored{Filename: f.Name, Reason: ReasonNotOnRoster, Detail: id})
			continue
		}

		f.ID = id
		res.FilesByName[f.Name] = f
		res.Accepted = append(res.Accepted, f.Name)
		if !submitted[id] {
			submitted[id] = true
			res.SubmittedIDs = append(res.SubmittedIDs, id)
		}

		if f.Size < c.cfg.minSize {
			res.Anomalous = append(res.Anomalous, Anomaly{ID: id, Name: roster.Name(id), Filename: f.Name, Size: f.Size})
			continue
		}

		d := Digest(f.Data)
		i, ok := groupIdx[d]
		if !ok {
			i = len(res.Groups)
			groupIdx[d] = i
			res.Groups = append(res.Groups, Group{Digest: d})
		}
		res.Groups[i].Members = append(res.Groups[i].Members, Member{ID: id, Filename: f.Name})
	}
	return res
}

func (c *Classifier) hidden(name string) bool {
	for _, p := range c.cfg.prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Digest is the hex SHA-256 of the content.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
