package agri_extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// ---------------------------------------------------------------------------
// BIO tags
// ---------------------------------------------------------------------------

// TagKind is the BIO position of a label.
type TagKind uint8

const (
	TagOutside TagKind = iota
	TagBegin
	TagInside
	// TagOther is any label outside the BIO scheme ("E-X", "S-X", a bare
	// "B-"). It neither opens nor closes an entity.
	TagOther
)

func (k TagKind) String() string {
	switch k {
	case TagBegin:
		return "B"
	case TagInside:
		return "I"
	case TagOther:
		return "?"
	default:
		return "O"
	}
}

// Tag is a label string parsed once at vocabulary load.
type Tag struct {
	Kind   TagKind
	Suffix string // raw entity suffix, e.g. "CROP"; empty for Outside
}

// ParseTag parses "B-<T>", "I-<T>" and "O". Every other label, including a
// prefix with an empty suffix, is TagOther.
func ParseTag(label string) Tag {
	switch {
	case label == "O":
		return Tag{Kind: TagOutside}
	case strings.HasPrefix(label, "B-") && len(label) > 2:
		return Tag{Kind: TagBegin, Suffix: label[2:]}
	case strings.HasPrefix(label, "I-") && len(label) > 2:
		return Tag{Kind: TagInside, Suffix: label[2:]}
	default:
		return Tag{Kind: TagOther}
	}
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// DefaultLabels is the label order of the fine-tuned PhoBERT NER head.
var DefaultLabels = []string{
	"O",
	"B-DATE", "I-DATE",
	"B-CROP", "I-CROP",
	"B-AREA", "I-AREA",
	"B-DEVICE", "I-DEVICE",
	"B-METRIC", "I-METRIC",
	"B-DURATION", "I-DURATION",
}

// DefaultEntityTypeMap returns a fresh copy of the suffix → display type map.
func DefaultEntityTypeMap() map[string]string {
	return map[string]string{
		"DATE":     EntityTypeDate,
		"CROP":     EntityTypeCrop,
		"AREA":     EntityTypeArea,
		"DEVICE":   EntityTypeDevice,
		"METRIC":   EntityTypeMetric,
		"DURATION": EntityTypeDuration,
	}
}

// ---------------------------------------------------------------------------
// LabelVocabulary
// ---------------------------------------------------------------------------

// LabelVocabulary is the immutable label table shared by every request.
type LabelVocabulary struct {
	labels  []string
	tags    []Tag
	index   map[string]int
	typeMap map[string]string
}

// NewLabelVocabulary validates labels and copies both inputs. A nil typeMap
// means DefaultEntityTypeMap.
func NewLabelVocabulary(labels []string, typeMap map[string]string) (*LabelVocabulary, error) {
	if len(labels) == 0 {
		return nil, errors.New(errors.ErrCodeLabelMappingInvalid, "label vocabulary must not be empty")
	}
	if typeMap == nil {
		typeMap = DefaultEntityTypeMap()
	}

	v := &LabelVocabulary{
		labels:  make([]string, len(labels)),
		tags:    make([]Tag, len(labels)),
		index:   make(map[string]int, len(labels)),
		typeMap: make(map[string]string, len(typeMap)),
	}
	for i, l := range labels {
		if _, dup := v.index[l]; dup {
			return nil, errors.New(errors.ErrCodeLabelMappingInvalid, "duplicate label").WithDetail(l)
		}
		v.labels[i] = l
		v.tags[i] = ParseTag(l)
		v.index[l] = i
	}
	for k, t := range typeMap {
		v.typeMap[k] = t
	}
	return v, nil
}

// DefaultLabelVocabulary returns the built-in 13-label vocabulary.
func DefaultLabelVocabulary() *LabelVocabulary {
	v, err := NewLabelVocabulary(DefaultLabels, nil)
	if err != nil {
		panic(fmt.Sprintf("agri_extractor: default vocabulary invalid: %v", err))
	}
	return v
}

// Len returns the number of labels.
func (v *LabelVocabulary) Len() int { return len(v.labels) }

// Labels returns a copy of the labels in id order.
func (v *LabelVocabulary) Labels() []string {
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

// Label returns the label string for id, "O" when out of range.
func (v *LabelVocabulary) Label(id int) string {
	if id < 0 || id >= len(v.labels) {
		return "O"
	}
	return v.labels[id]
}

// Tag returns the parsed tag for id. Out-of-range ids are Outside.
func (v *LabelVocabulary) Tag(id int) Tag {
	if id < 0 || id >= len(v.tags) {
		return Tag{Kind: TagOutside}
	}
	return v.tags[id]
}

// ID looks up the id of a label string.
func (v *LabelVocabulary) ID(label string) (int, bool) {
	id, ok := v.index[label]
	return id, ok
}

// DisplayType maps a raw tag suffix to its public type name. Unknown suffixes
// fall back to their lower-cased form.
func (v *LabelVocabulary) DisplayType(suffix string) string {
	if t, ok := v.typeMap[suffix]; ok {
		return t
	}
	return strings.ToLower(suffix)
}

// TypeMap returns a copy of the suffix → display type map.
func (v *LabelVocabulary) TypeMap() map[string]string {
	out := make(map[string]string, len(v.typeMap))
	for k, t := range v.typeMap {
		out[k] = t
	}
	return out
}

// Fingerprint is a stable digest of labels and type map, used to scope cached
// results to the vocabulary that produced them.
func (v *LabelVocabulary) Fingerprint() string {
	h := sha256.New()
	for _, l := range v.labels {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(v.typeMap))
	for k := range v.typeMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k + "=" + v.typeMap[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ---------------------------------------------------------------------------
// label_mapping.json
// ---------------------------------------------------------------------------

// labelMappingFile mirrors the label_mapping.json written next to the trained
// model.
type labelMappingFile struct {
	LabelToID   map[string]int    `json:"label_to_id"`
	IDToLabel   map[string]string `json:"id_to_label,omitempty"`
	EntityTypes []string          `json:"entity_types,omitempty"`
}

// LoadLabelMapping builds a vocabulary from a label_mapping.json document.
// Labels are ordered by id and ids must be dense from 0. Entity types missing
// from the default type map are added lower-cased; existing display names win.
func LoadLabelMapping(r io.Reader) (*LabelVocabulary, error) {
	var f labelMappingFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLabelMappingInvalid, "failed to decode label mapping")
	}
	if len(f.LabelToID) == 0 {
		return nil, errors.New(errors.ErrCodeLabelMappingInvalid, "label_to_id is empty")
	}

	labels := make([]string, len(f.LabelToID))
	seen := make([]bool, len(f.LabelToID))
	for label, id := range f.LabelToID {
		if id < 0 || id >= len(labels) || seen[id] {
			return nil, errors.New(errors.ErrCodeLabelMappingInvalid, "label ids must be dense and unique").
				WithDetail(fmt.Sprintf("%s=%d", label, id))
		}
		labels[id] = label
		seen[id] = true
	}

	typeMap := DefaultEntityTypeMap()
	for _, et := range f.EntityTypes {
		if et == "" {
			continue
		}
		if _, ok := typeMap[et]; !ok {
			typeMap[et] = strings.ToLower(et)
		}
	}
	return NewLabelVocabulary(labels, typeMap)
}

// LoadLabelMappingFile reads label_mapping.json from path.
func LoadLabelMappingFile(path string) (*LabelVocabulary, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLabelMappingInvalid, "failed to open label mapping")
	}
	defer fh.Close()
	return LoadLabelMapping(fh)
}

//Personal.AI order the ending
