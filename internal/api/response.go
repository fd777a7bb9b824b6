// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/logging"
)

// codeInternal is the error code of failures that carry no engine error kind.
const codeInternal = "INTERNAL_ERROR"

// Response is the envelope of every JSON body.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata is attached to every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, response *Response) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, &Response{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &Response{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	})
}

// respondResult sends an orchestrator result. A failed run keeps the result
// as data next to the error, so clients see the backup or restore id.
func respondResult(w http.ResponseWriter, created bool, data any, success bool, kind backup.ErrorKind, message string) {
	if success {
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		respondJSON(w, status, &Response{
			Status:   "success",
			Data:     data,
			Metadata: Metadata{Timestamp: time.Now().UTC()},
		})
		return
	}
	status, code := kindStatus(kind)
	respondJSON(w, status, &Response{
		Status:   "error",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	})
}

// respondEngineError maps an engine error onto an HTTP status by its kind.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := kindStatus(backup.KindOf(err))
	log := logging.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Engine request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Engine request rejected")
	}
	respondError(w, status, code, err.Error())
}

func kindStatus(kind backup.ErrorKind) (int, string) {
	switch kind {
	case "":
		return http.StatusInternalServerError, codeInternal
	case backup.KindNotFound:
		return http.StatusNotFound, kindCode(kind)
	case backup.KindValidation, backup.KindConfiguration:
		return http.StatusBadRequest, kindCode(kind)
	case backup.KindCanceled:
		return http.StatusConflict, kindCode(kind)
	}
	return http.StatusInternalServerError, kindCode(kind)
}

// kindCode and codeKind convert between error kinds and API error codes.
func kindCode(kind backup.ErrorKind) string { return strings.ToUpper(string(kind)) }

func codeKind(code string) backup.ErrorKind {
	switch kind := backup.ErrorKind(strings.ToLower(code)); kind {
	case backup.KindConfiguration, backup.KindMetadata, backup.KindDump, backup.KindRestore,
		backup.KindFilesystem, backup.KindNotFound, backup.KindValidation, backup.KindCanceled:
		return kind
	}
	return ""
}
