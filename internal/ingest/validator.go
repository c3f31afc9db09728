package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
)

const (
	maxTextLength    = 100_000
	maxTitleLength   = 512
	maxSubjectLength = 128
)

// Validate checks a document message before indexing or publishing.
func Validate(msg *DocumentMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("%w: text is empty", apperrors.ErrInvalidInput)
	}
	if !utf8.ValidString(msg.Text) {
		return fmt.Errorf("%w: text is not valid UTF-8", apperrors.ErrInvalidInput)
	}
	if len(msg.Text) > maxTextLength {
		return fmt.Errorf("%w: text exceeds %d bytes", apperrors.ErrInvalidInput, maxTextLength)
	}
	if len(msg.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d bytes", apperrors.ErrInvalidInput, maxTitleLength)
	}
	if len(msg.Subject) > maxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d bytes", apperrors.ErrInvalidInput, maxSubjectLength)
	}
	return nil
}
