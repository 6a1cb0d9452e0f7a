package lexvector

import (
	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
)

// The cache's error taxonomy. Check with errors.Is.
//
// ErrCaseNotFound and ErrDimensionMismatch indicate caller programming
// errors and should not be retried blindly. ErrUnavailable tags transient
// persistence failures and is safe to retry with backoff.
var (
	ErrCaseNotFound      = storage.ErrCasoNotFound
	ErrPatternNotFound   = storage.ErrPatternNotFound
	ErrDimensionMismatch = model.ErrDimensionMismatch
	ErrUnavailable       = storage.ErrUnavailable
)
