package service

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

var errNotJSON = errors.New("payload is not JSON")

// MaybeDecode is the single decode step shared by the bundle and its blocks.
// A JSON string literal is unquoted and its text returned (encoded=true); any
// other JSON value is returned as is. The result is always valid JSON.
func MaybeDecode(raw json.RawMessage) (decoded json.RawMessage, encoded bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, errNotJSON
	}
	if raw[0] != '"' {
		if !json.Valid(raw) {
			return nil, false, errNotJSON
		}
		return raw, false, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, true, err
	}
	inner := bytes.TrimSpace([]byte(text))
	if len(inner) == 0 || !json.Valid(inner) {
		return nil, true, errNotJSON
	}
	return inner, true, nil
}

// NormalizeBundle turns a generation response body into a content bundle.
// Blocks are kept raw, in server order; an empty object is a valid, empty bundle.
func NormalizeBundle(body []byte) (models.ContentBundle, error) {
	decoded, _, err := MaybeDecode(body)
	if err != nil {
		return models.ContentBundle{}, appErrors.Wrap(err, appErrors.ErrResponseFormat.Code, appErrors.ErrResponseFormat.Status, appErrors.ErrResponseFormat.Message)
	}
	if decoded[0] != '{' {
		return models.ContentBundle{}, appErrors.Clone(appErrors.ErrResponseFormat, "")
	}
	var bundle models.ContentBundle
	if err := json.Unmarshal(decoded, &bundle); err != nil {
		return models.ContentBundle{}, appErrors.Wrap(err, appErrors.ErrResponseFormat.Code, appErrors.ErrResponseFormat.Status, appErrors.ErrResponseFormat.Message)
	}
	return bundle, nil
}
