package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// EmptyBundleMessage is shown when a generation returns no blocks.
const EmptyBundleMessage = "No content generated."

type blockDecoder func(json.RawMessage) (models.Block, error)

// blockDecoders has one entry per known tag. The backend sometimes wraps a
// list in an object under the key named here.
var blockDecoders = map[models.ContentType]blockDecoder{
	models.ContentQCM: func(raw json.RawMessage) (models.Block, error) {
		items, err := decodeItems[models.QCMQuestion](raw, "questions")
		if err != nil {
			return nil, err
		}
		return &models.QCMBlock{Questions: items}, nil
	},
	models.ContentExercises: func(raw json.RawMessage) (models.Block, error) {
		items, err := decodeItems[models.Exercise](raw, "exercises")
		if err != nil {
			return nil, err
		}
		return &models.ExercisesBlock{Exercises: items}, nil
	},
	models.ContentFillInTheBlanks: func(raw json.RawMessage) (models.Block, error) {
		items, err := decodeItems[models.BlankText](raw, "texts")
		if err != nil {
			return nil, err
		}
		return &models.FillInTheBlanksBlock{Texts: items}, nil
	},
	models.ContentSummary: func(raw json.RawMessage) (models.Block, error) {
		items, err := decodeItems[models.SummarySheet](raw, "summaries")
		if err != nil {
			return nil, err
		}
		return &models.SummaryBlock{Summaries: items}, nil
	},
	models.ContentConceptMap: func(raw json.RawMessage) (models.Block, error) {
		items, err := decodeItems[models.ConceptMap](raw, "maps")
		if err != nil {
			return nil, err
		}
		return &models.ConceptMapBlock{Maps: items}, nil
	},
}

// RenderBlock renders one tag. Failures stay inside the returned view.
func RenderBlock(tag models.ContentType, raw json.RawMessage) models.View {
	view := models.View{Tag: tag, Title: tag.Title(), Kind: "raw"}

	decode, known := blockDecoders[tag]
	if !known {
		view.Block = &models.RawBlock{Dump: dumpRaw(raw)}
		return view
	}
	view.Kind = string(tag)

	decoded, _, err := MaybeDecode(raw)
	if err != nil {
		view.Error = blockParseError(tag, err)
		return view
	}
	block, err := decode(decoded)
	if err != nil {
		view.Error = blockParseError(tag, err)
		return view
	}
	view.Block = block
	return view
}

// RenderBundle renders every block in bundle order.
func RenderBundle(bundle models.ContentBundle) models.Review {
	review := models.Review{Views: make([]models.View, 0, bundle.Len()), GeneratedAt: time.Now().UTC()}
	if bundle.Len() == 0 {
		review.Empty = true
		review.Message = EmptyBundleMessage
		return review
	}
	for _, tag := range bundle.Order {
		review.Views = append(review.Views, RenderBlock(tag, bundle.Blocks[tag]))
	}
	return review
}

func decodeItems[T any](raw json.RawMessage, wrapperKey string) ([]T, error) {
	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, err
		}
		// A wrapper without its list renders as an empty block.
		inner, ok := wrapper[wrapperKey]
		if !ok || isJSONNull(inner) {
			return []T{}, nil
		}
		inner, _, err := MaybeDecode(inner)
		if err != nil {
			return nil, err
		}
		if isJSONNull(inner) {
			return []T{}, nil
		}
		if inner[0] != '[' {
			return nil, fmt.Errorf("%q is not a list", wrapperKey)
		}
		var items []T
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected a list or an object, got %s", truncate(string(raw), 32))
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// dumpRaw renders an unrecognised block as indented JSON, or verbatim text
// when it is not JSON at all.
func dumpRaw(raw json.RawMessage) string {
	decoded, _, err := MaybeDecode(raw)
	if err != nil {
		var text string
		if json.Unmarshal(raw, &text) == nil {
			return text
		}
		return string(bytes.TrimSpace(raw))
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, decoded, "", "  "); err != nil {
		return string(decoded)
	}
	return buf.String()
}

func blockParseError(tag models.ContentType, err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrBlockParse.Code, appErrors.ErrBlockParse.Status,
		fmt.Sprintf("%s: %s", tag.Title(), appErrors.ErrBlockParse.Message))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
