package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"royalties/internal/textutil"
)

// Writer is a songwriter credited on a work. Share is a percentage of the
// work's royalties; RightShares overrides it for individual right types.
type Writer struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	NormalizedName string                     `json:"normalized_name,omitempty"`
	IPI            string                     `json:"ipi,omitempty"`
	Share          decimal.Decimal            `json:"share"`
	RightShares    map[string]decimal.Decimal `json:"right_shares,omitempty"`
	Controlled     bool                       `json:"controlled"`
}

// Publisher is a publishing party credited on a work.
type Publisher struct {
	ID          string                     `json:"id"`
	Code        string                     `json:"code,omitempty"`
	Name        string                     `json:"name"`
	Share       decimal.Decimal            `json:"share"`
	RightShares map[string]decimal.Decimal `json:"right_shares,omitempty"`
}

// Recording links a sound recording (by ISRC) to its underlying work.
type Recording struct {
	ISRC   string `json:"isrc"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

// Work is a musical composition in a tenant catalog.
type Work struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id,omitempty"`
	Code            string      `json:"code,omitempty"`
	Title           string      `json:"title"`
	NormalizedTitle string      `json:"normalized_title,omitempty"`
	AlternateTitles []string    `json:"alternate_titles,omitempty"`
	ISWC            string      `json:"iswc,omitempty"`
	Writers         []Writer    `json:"writers,omitempty"`
	Publishers      []Publisher `json:"publishers,omitempty"`
	Recordings      []Recording `json:"recordings,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
}

// Clone returns a deep copy so snapshots never share slices with loaders.
func (w Work) Clone() Work {
	out := w
	out.AlternateTitles = append([]string(nil), w.AlternateTitles...)
	out.Writers = append([]Writer(nil), w.Writers...)
	out.Publishers = append([]Publisher(nil), w.Publishers...)
	out.Recordings = append([]Recording(nil), w.Recordings...)
	out.Embedding = append([]float32(nil), w.Embedding...)
	return out
}

// Normalize fills derived fields and canonicalizes identifiers in place.
func (w *Work) Normalize() {
	w.ID = strings.TrimSpace(w.ID)
	w.Code = textutil.NormalizeCode(w.Code)
	w.Title = strings.TrimSpace(w.Title)
	w.NormalizedTitle = textutil.NormalizeTitle(w.Title)
	w.ISWC = textutil.NormalizeISWC(w.ISWC)
	for i := range w.Writers {
		w.Writers[i].NormalizedName = textutil.NormalizeName(w.Writers[i].Name)
	}
	for i := range w.Recordings {
		w.Recordings[i].ISRC = textutil.NormalizeISRC(w.Recordings[i].ISRC)
	}
}

// WriterNames returns the normalized writer names.
func (w *Work) WriterNames() []string {
	names := make([]string, 0, len(w.Writers))
	for _, writer := range w.Writers {
		if writer.NormalizedName != "" {
			names = append(names, writer.NormalizedName)
		}
	}
	return names
}

// SearchText is the text embedded for semantic lookup: title plus writers.
func (w *Work) SearchText() string {
	parts := []string{w.Title}
	parts = append(parts, w.AlternateTitles...)
	for _, writer := range w.Writers {
		parts = append(parts, writer.Name)
	}
	return strings.Join(parts, " ")
}

// ShareTotal sums writer and publisher shares applicable to rightType.
func (w *Work) ShareTotal(rightType string) decimal.Decimal {
	total := decimal.Zero
	for _, writer := range w.Writers {
		total = total.Add(shareFor(writer.Share, writer.RightShares, rightType))
	}
	for _, publisher := range w.Publishers {
		total = total.Add(shareFor(publisher.Share, publisher.RightShares, rightType))
	}
	return total
}

// ShareFor returns the writer's share for rightType.
func (wr Writer) ShareFor(rightType string) decimal.Decimal {
	return shareFor(wr.Share, wr.RightShares, rightType)
}

// ShareFor returns the publisher's share for rightType.
func (p Publisher) ShareFor(rightType string) decimal.Decimal {
	return shareFor(p.Share, p.RightShares, rightType)
}

func shareFor(base decimal.Decimal, overrides map[string]decimal.Decimal, rightType string) decimal.Decimal {
	if override, ok := overrides[rightType]; ok {
		return override
	}
	return base
}
