package records

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Service accepts submissions: a record plus an optional image.
type Service struct {
	store   *Store
	uploads *Uploads
}

func NewService(store *Store, uploads *Uploads) *Service {
	return &Service{store: store, uploads: uploads}
}

// Result describes an accepted submission.
type Result struct {
	Entry *Entry
	Saved string
}

// Submit stores rec, saving imageB64 first when present. On a bad image
// nothing is stored and ErrInvalidBase64 is returned.
func (s *Service) Submit(ctx context.Context, rec map[string]any, imageB64 string) (*Result, error) {
	if rec == nil {
		rec = map[string]any{}
	}
	saved, err := s.uploads.SaveBase64(imageB64)
	if err != nil {
		return nil, err
	}
	if saved != "" {
		rec[SavedImageKey] = saved
	}
	return s.append(ctx, rec, saved)
}

// SubmitMultipart is Submit for form uploads: recordJSON is the JSON object
// text ("" means {}) and image may be nil.
func (s *Service) SubmitMultipart(ctx context.Context, recordJSON string, image io.Reader) (*Result, error) {
	if recordJSON == "" {
		recordJSON = "{}"
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, errors.Wrap(err, "decode record_json")
	}

	saved := ""
	if image != nil {
		p, err := s.uploads.SaveReader(image)
		if err != nil {
			return nil, err
		}
		saved = p
	}
	if saved != "" {
		if rec == nil {
			rec = map[string]any{}
		}
		rec[SavedImageKey] = saved
	}
	return s.append(ctx, rec, saved)
}

// append stores rec and drops the saved image again if the insert fails.
func (s *Service) append(ctx context.Context, rec map[string]any, saved string) (*Result, error) {
	e, err := s.store.Append(ctx, rec)
	if err != nil {
		_ = s.uploads.Remove(saved)
		return nil, err
	}
	return &Result{Entry: e, Saved: saved}, nil
}

// List returns stored entries oldest first.
func (s *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	return s.store.List(ctx, limit)
}
