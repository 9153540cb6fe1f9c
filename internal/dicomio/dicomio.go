// Package dicomio adapts a conforming DICOM library (spec.md's Non-goals
// assume one exists) to the narrow surface the rest of this module needs:
// Part-10 read/write, canonical-name + "(gggg,eeee)" tag lookup, a dataset
// walk with an element-level rewrite callback, and ROI-name enumeration.
// No pixel decoding ever happens here, per Non-goals.
//
// Grounded on the teacher's narrow-interface-over-backend idiom (cf. the
// cloud-provider backend split under ais/backend/*.go): callers depend on
// Dataset/Element, never on the underlying suyashkumar/dicom types, so the
// codec can be swapped without touching pipeline code.
package dicomio

import (
	"fmt"
	"os"

	godicom "github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/draw-health/gateway/internal/cos"
)

// Tag is a DICOM group/element pair, e.g. (0x0010,0x0020) for PatientID.
type Tag struct {
	Group, Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Element is one dataset element. Sequence is non-nil only for VR "SQ",
// holding one Dataset per item.
type Element struct {
	Tag      Tag
	VR       string
	Value    []string
	Sequence []*Dataset
}

// Dataset is a flat, ordered view of a parsed DICOM file plus an index for
// O(1) tag lookup. It intentionally drops pixel data: Non-goals exclude
// pixel decoding, and the pipelines here never touch PixelData.
type Dataset struct {
	Elements []*Element
	byTag    map[Tag]*Element
}

func newDataset() *Dataset {
	return &Dataset{byTag: make(map[Tag]*Element)}
}

// NewDataset returns an empty Dataset ready for Set/add, for callers that
// build a dataset from scratch rather than parsing one (tests, synthetic
// fixtures).
func NewDataset() *Dataset {
	return newDataset()
}

func (d *Dataset) add(e *Element) {
	d.Elements = append(d.Elements, e)
	d.byTag[e.Tag] = e
}

// Get returns the element at t, if present.
func (d *Dataset) Get(t Tag) (*Element, bool) {
	e, ok := d.byTag[t]
	return e, ok
}

// GetString returns the first value of the element at t, joined if
// multi-valued isn't needed by the caller.
func (d *Dataset) GetString(t Tag) (string, bool) {
	e, ok := d.byTag[t]
	if !ok || len(e.Value) == 0 {
		return "", false
	}
	return e.Value[0], true
}

// Set overwrites (or inserts) the element at t with a single string value,
// used by the reidentify pipeline's demographic/UID rewrite (spec.md §4.8).
func (d *Dataset) Set(t Tag, vr string, value string) {
	if e, ok := d.byTag[t]; ok {
		e.Value = []string{value}
		return
	}
	e := &Element{Tag: t, VR: vr, Value: []string{value}}
	d.add(e)
}

// WalkFunc is called once per element, including elements nested inside
// sequence items; returning an error aborts the walk.
type WalkFunc func(e *Element) error

// Walk visits every element depth-first, descending into sequence items.
// Grounded on the teacher's fs.Walk callback-per-entry shape (fs/walk.go),
// repurposed from filesystem entries to dataset elements.
func (d *Dataset) Walk(fn WalkFunc) error {
	for _, e := range d.Elements {
		if err := fn(e); err != nil {
			return err
		}
		for _, sub := range e.Sequence {
			if err := sub.Walk(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadFile parses a Part-10 file (128-byte preamble, "DICM" magic, file
// meta, dataset) using the suyashkumar/dicom codec, without pixel data.
func ReadFile(path string) (*Dataset, error) {
	parsed, err := godicom.ParseFile(path, nil, godicom.SkipPixelData())
	if err != nil {
		return nil, cos.Wrap(cos.FormatInvalid, path, err, "parse dicom file")
	}
	return fromLibrary(parsed), nil
}

func fromLibrary(ds godicom.Dataset) *Dataset {
	out := newDataset()
	for _, el := range ds.Elements {
		out.add(elementFromLibrary(el))
	}
	return out
}

func elementFromLibrary(el *godicom.Element) *Element {
	out := &Element{
		Tag: Tag{Group: el.Tag.Group, Element: el.Tag.Element},
		VR:  el.RawValueRepresentation,
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		out.Value = v
	case []*godicom.SequenceItemValue:
		for _, item := range v {
			sub := newDataset()
			for _, sel := range item.GetElements() {
				sub.add(elementFromLibrary(sel))
			}
			out.Sequence = append(out.Sequence, sub)
		}
	default:
		out.Value = []string{el.Value.String()}
	}
	return out
}

// WriteFile writes ds as a Part-10 file to path, creating parent
// directories as needed (cos.CreateFile).
func WriteFile(path string, ds *Dataset) error {
	f, err := cos.CreateFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	lib, err := toLibrary(ds)
	if err != nil {
		return cos.Wrap(cos.FormatInvalid, path, err, "build dicom dataset")
	}
	if err := godicom.Write(f, lib); err != nil {
		os.Remove(path)
		return cos.Wrap(cos.FormatInvalid, path, err, "write dicom file")
	}
	return nil
}

func toLibrary(ds *Dataset) (godicom.Dataset, error) {
	var elems []*godicom.Element
	for _, e := range ds.Elements {
		lib, err := elementToLibrary(e)
		if err != nil {
			return godicom.Dataset{}, err
		}
		elems = append(elems, lib)
	}
	return godicom.Dataset{Elements: elems}, nil
}

func elementToLibrary(e *Element) (*godicom.Element, error) {
	t := tag.Tag{Group: e.Tag.Group, Element: e.Tag.Element}
	if len(e.Sequence) > 0 {
		var items []*godicom.SequenceItemValue
		for _, sub := range e.Sequence {
			subLib, err := toLibrary(sub)
			if err != nil {
				return nil, err
			}
			items = append(items, godicom.NewSequenceItemValue(subLib.Elements))
		}
		return godicom.NewElement(t, e.VR, items)
	}
	return godicom.NewElement(t, e.VR, e.Value)
}
