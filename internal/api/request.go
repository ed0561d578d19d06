// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies. File writes are the largest payloads.
const maxBodyBytes = 4 << 20

var errBadBody = errors.New("invalid request body")

// decodeJSON reads one JSON value from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// badRequest writes a 400 carrying err's text.
func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	RespondError(w, r, http.StatusBadRequest, &APIError{Code: ErrBadRequest.Code, Message: err.Error()})
}
