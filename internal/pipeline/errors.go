package pipeline

// # Error Codes Reference
//
// Errors surfaced by a run carry a code operators can grep the logs for.
//
//	SRC001  Source unavailable: a CSV file could not be read, or the pull failed
//	        Action: Check SOURCE, SOURCE_SUBDIR and the upstream remote
//
//	SRC002  Missing source columns: the upstream header changed
//	        Action: Compare the file header with the catalog's columns list
//
//	COL001  Column not found: a step referenced a column its input lacks
//	SCH001  Schema mismatch: tables could not be combined or reshaped
//	KEY001  Duplicate key: a joined series repeats a key
//	        Action (all three): Review the artifact's steps in the catalog
//
//	CUBE001 Sparse cube: some dimension combination has no row
//	CUBE002 Duplicate cell: two rows address the same cell
//	        Action: Add the missing dimension, or filter the duplicates out
//
//	CAT001  Catalog error: the YAML catalog is invalid
//	        Action: Fix CATALOG_FILE; run `covidstat check` to validate it
//
//	PUB001  Publish failure: commit or push of the output repository failed
//	        Action: Check REPOSITORY, its remote and credentials
//
//	RUN001  Cancelled: the run was interrupted or timed out
//
//	ERR000  Unknown error
//	        Action: See the log line carrying the original error

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/covidstat/internal/catalog"
	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/source"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// UserMessage is an operator-facing description of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Stable reference for logs and alerts
}

type errorClass struct {
	targets []error
	msg     UserMessage
}

// errorClasses are tried in order; the first class with a target the error
// wraps wins, so more specific sentinels come first.
var errorClasses = []errorClass{
	{
		targets: []error{context.Canceled, context.DeadlineExceeded},
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Run again when ready",
			Code:    "RUN001",
		},
	},
	{
		targets: []error{ErrPublish},
		msg: UserMessage{
			Message: "The output repository could not be published",
			Action:  "Check REPOSITORY, its remote and credentials",
			Code:    "PUB001",
		},
	},
	{
		targets: []error{source.ErrMissingColumns},
		msg: UserMessage{
			Message: "A source file is missing expected columns",
			Action:  "Compare the file header with the catalog's columns list",
			Code:    "SRC002",
		},
	},
	{
		targets: []error{source.ErrSourceUnavailable},
		msg: UserMessage{
			Message: "A source file could not be read",
			Action:  "Check SOURCE, SOURCE_SUBDIR and the upstream remote",
			Code:    "SRC001",
		},
	},
	{
		targets: []error{cube.ErrSparse},
		msg: UserMessage{
			Message: "The cube has missing cells",
			Action:  "Add the missing dimension or fill the gaps upstream",
			Code:    "CUBE001",
		},
	},
	{
		targets: []error{cube.ErrDuplicateCell},
		msg: UserMessage{
			Message: "Two rows address the same cube cell",
			Action:  "Filter duplicates or add the distinguishing dimension",
			Code:    "CUBE002",
		},
	},
	{
		targets: []error{tabular.ErrColumnNotFound},
		msg: UserMessage{
			Message: "A step referenced a missing column",
			Action:  "Review the artifact's steps in the catalog",
			Code:    "COL001",
		},
	},
	{
		targets: []error{tabular.ErrDuplicateKey},
		msg: UserMessage{
			Message: "A joined series repeats a key",
			Action:  "Review the artifact's steps in the catalog",
			Code:    "KEY001",
		},
	},
	{
		targets: []error{tabular.ErrSchemaMismatch},
		msg: UserMessage{
			Message: "Tables could not be combined or reshaped",
			Action:  "Review the artifact's steps in the catalog",
			Code:    "SCH001",
		},
	},
	{
		targets: []error{
			catalog.ErrInvalidCatalog, catalog.ErrUnknownOp, catalog.ErrInvalidStep,
			catalog.ErrUnknownSeries, catalog.ErrCycle,
		},
		msg: UserMessage{
			Message: "The artifact catalog is invalid",
			Action:  "Fix CATALOG_FILE; run `covidstat check` to validate it",
			Code:    "CAT001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "See the log line carrying the original error",
	Code:    "ERR000",
}

// Describe maps an error to its operator-facing message. A nil error yields
// the zero UserMessage. An *ArtifactErrors is described by its first
// failure.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var many *ArtifactErrors
	if errors.As(err, &many) && len(many.Errs) > 0 {
		err = many.Errs[0]
	}

	for _, c := range errorClasses {
		for _, target := range c.targets {
			if errors.Is(err, target) {
				return c.msg
			}
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := Describe(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
