package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// ContentType is a content-type tag as used by the generation service.
type ContentType string

const (
	ContentQCM             ContentType = "qcm"
	ContentExercises       ContentType = "exercises"
	ContentFillInTheBlanks ContentType = "fillInTheBlanks"
	ContentSummary         ContentType = "summary"
	ContentConceptMap      ContentType = "conceptMap"
)

// KnownContentTypes lists the recognised tags in canonical order.
var KnownContentTypes = []ContentType{ContentQCM, ContentExercises, ContentFillInTheBlanks, ContentSummary, ContentConceptMap}

var contentTitles = map[ContentType]string{
	ContentQCM:             "QCM",
	ContentExercises:       "Exercises",
	ContentFillInTheBlanks: "Fill-in-the-blank texts",
	ContentSummary:         "Summary sheets",
	ContentConceptMap:      "Concept maps",
}

// Known reports whether t is one of the five recognised tags.
func (t ContentType) Known() bool {
	_, ok := contentTitles[t]
	return ok
}

// Title is the display title; unknown tags display as themselves.
func (t ContentType) Title() string {
	if title, ok := contentTitles[t]; ok {
		return title
	}
	return string(t)
}

// ContentBundle maps tags to raw blocks, keeping the order the service sent them in.
// Blocks are left undecoded so one malformed block cannot spoil the others.
type ContentBundle struct {
	Order  []ContentType
	Blocks map[ContentType]json.RawMessage
}

// NewContentBundle returns an empty bundle.
func NewContentBundle() ContentBundle {
	return ContentBundle{Order: []ContentType{}, Blocks: map[ContentType]json.RawMessage{}}
}

// Set adds or replaces a block, appending new tags to the order.
func (b *ContentBundle) Set(tag ContentType, raw json.RawMessage) {
	if b.Blocks == nil {
		b.Blocks = map[ContentType]json.RawMessage{}
	}
	if _, exists := b.Blocks[tag]; !exists {
		b.Order = append(b.Order, tag)
	}
	b.Blocks[tag] = raw
}

// Len is the number of blocks.
func (b ContentBundle) Len() int {
	return len(b.Order)
}

// MarshalJSON writes the blocks as received, in order.
func (b ContentBundle) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tag := range b.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(tag))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		raw := b.Blocks[tag]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object while preserving key order.
func (b *ContentBundle) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("content bundle must be a JSON object")
	}
	out := NewContentBundle()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out.Set(ContentType(key), raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*b = out
	return nil
}

// Block is the closed set of decoded content blocks. Implementations live in
// this package only; BlockVisitor makes every consumer handle every case.
type Block interface {
	Kind() string
	Len() int
	Accept(v BlockVisitor)
	isBlock()
}

// BlockVisitor has one method per Block case.
type BlockVisitor interface {
	VisitQCM(*QCMBlock)
	VisitExercises(*ExercisesBlock)
	VisitFillInTheBlanks(*FillInTheBlanksBlock)
	VisitSummary(*SummaryBlock)
	VisitConceptMap(*ConceptMapBlock)
	VisitRaw(*RawBlock)
}

// QCMQuestion is one multiple-choice question.
type QCMQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}

// IsCorrect reports whether option i is the marked answer.
func (q QCMQuestion) IsCorrect(i int) bool {
	return q.CorrectAnswer != nil && *q.CorrectAnswer == i
}

type QCMBlock struct {
	Questions []QCMQuestion `json:"questions"`
}

type Exercise struct {
	Statement string `json:"statement"`
	Solution  string `json:"solution"`
}

type ExercisesBlock struct {
	Exercises []Exercise `json:"exercises"`
}

type BlankText struct {
	Text    string   `json:"text"`
	Answers []string `json:"answers"`
}

type FillInTheBlanksBlock struct {
	Texts []BlankText `json:"texts"`
}

type SummarySheet struct {
	Content string `json:"content"`
}

type SummaryBlock struct {
	Summaries []SummarySheet `json:"summaries"`
}

type ConceptMap struct {
	Description string `json:"description"`
}

type ConceptMapBlock struct {
	Maps []ConceptMap `json:"maps"`
}

// RawBlock is the fallback for tags the studio does not recognise.
type RawBlock struct {
	Dump string `json:"dump"`
}

func (*QCMBlock) Kind() string             { return string(ContentQCM) }
func (*ExercisesBlock) Kind() string       { return string(ContentExercises) }
func (*FillInTheBlanksBlock) Kind() string { return string(ContentFillInTheBlanks) }
func (*SummaryBlock) Kind() string         { return string(ContentSummary) }
func (*ConceptMapBlock) Kind() string      { return string(ContentConceptMap) }
func (*RawBlock) Kind() string             { return "raw" }

func (b *QCMBlock) Len() int             { return len(b.Questions) }
func (b *ExercisesBlock) Len() int       { return len(b.Exercises) }
func (b *FillInTheBlanksBlock) Len() int { return len(b.Texts) }
func (b *SummaryBlock) Len() int         { return len(b.Summaries) }
func (b *ConceptMapBlock) Len() int      { return len(b.Maps) }
func (b *RawBlock) Len() int             { return 1 }

func (b *QCMBlock) Accept(v BlockVisitor)             { v.VisitQCM(b) }
func (b *ExercisesBlock) Accept(v BlockVisitor)       { v.VisitExercises(b) }
func (b *FillInTheBlanksBlock) Accept(v BlockVisitor) { v.VisitFillInTheBlanks(b) }
func (b *SummaryBlock) Accept(v BlockVisitor)         { v.VisitSummary(b) }
func (b *ConceptMapBlock) Accept(v BlockVisitor)      { v.VisitConceptMap(b) }
func (b *RawBlock) Accept(v BlockVisitor)             { v.VisitRaw(b) }

func (*QCMBlock) isBlock()             {}
func (*ExercisesBlock) isBlock()       {}
func (*FillInTheBlanksBlock) isBlock() {}
func (*SummaryBlock) isBlock()         {}
func (*ConceptMapBlock) isBlock()      {}
func (*RawBlock) isBlock()             {}

// View is the rendered form of one tag. Exactly one of Block and Error is set.
type View struct {
	Tag   ContentType      `json:"tag"`
	Title string           `json:"title"`
	Kind  string           `json:"kind"`
	Block Block            `json:"block,omitempty"`
	Error *appErrors.Error `json:"error,omitempty"`
}

// Failed reports whether the view holds a tag-scoped error.
func (v View) Failed() bool {
	return v.Error != nil
}

// Review is the rendered bundle shown after a generation.
type Review struct {
	Views       []View             `json:"views"`
	Empty       bool               `json:"empty"`
	Message     string             `json:"message,omitempty"`
	Request     *GenerationRequest `json:"request,omitempty"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// View returns the view for tag, if rendered.
func (r *Review) View(tag ContentType) (View, bool) {
	if r == nil {
		return View{}, false
	}
	for _, v := range r.Views {
		if v.Tag == tag {
			return v, true
		}
	}
	return View{}, false
}
