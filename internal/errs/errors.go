// Package errs provides coded errors for the embr engine.
//
// Every failure site carries a machine-readable Code of the form
// "area.operation.reason". Callers classify failures by reason through the
// Is* helpers instead of matching message text.
package errs

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeInputInvalid Code = "cli.input.invalid"

	CodeRepoNotFound           Code = "repo.state.not_repository"
	CodeRepoAlreadyExists      Code = "repo.init.exists"
	CodeRepoPathOutside        Code = "repo.path.outside"
	CodeRepoPathUnresolvable   Code = "repo.path.unresolvable"
	CodeRepoIOFailure          Code = "repo.io.failure"
	CodeRepoLockFailure        Code = "repo.lock.failure"
	CodeRepoModelRequired      Code = "repo.model.invalid"
	CodeRepoSetNotEmpty        Code = "repo.set.conflict"
	CodeRepoRemoteNotFound     Code = "repo.remote.not_found"
	CodeRepoRemoteFailure      Code = "repo.remote.failure"
	CodeRepoRemoteInvalid      Code = "repo.remote.invalid"
	CodeRepoGenerateFailure    Code = "repo.generate.failure"
	CodeRepoMergeInvalid       Code = "repo.merge.invalid"
	CodeRepoVerifyCorrupt      Code = "repo.verify.corrupt"
	CodeRepoRollbackNotTracked Code = "repo.rollback.not_tracked"

	CodeEmbeddingDimsRequired  Code = "embedding.read.invalid"
	CodeEmbeddingInvalidDims   Code = "embedding.dims.invalid_dimensions"
	CodeEmbeddingDimMismatch   Code = "embedding.dims.dimension_mismatch"
	CodeEmbeddingInvalidValues Code = "embedding.values.invalid_values"
	CodeEmbeddingFormatInvalid Code = "embedding.format.invalid"
	CodeEmbeddingDTypeInvalid  Code = "embedding.dtype.invalid"
	CodeEmbeddingReadFailure   Code = "embedding.read.failure"

	CodeObjectHashTooShort  Code = "object.resolve.too_short"
	CodeObjectHashAmbiguous Code = "object.resolve.ambiguous"
	CodeObjectNotFound      Code = "object.resolve.not_found"
	CodeObjectHashInvalid   Code = "object.resolve.invalid"
	CodeObjectWriteFailure  Code = "object.write.failure"
	CodeObjectReadFailure   Code = "object.read.failure"
	CodeObjectCorrupt       Code = "object.read.corrupt"
	CodeObjectCodecInvalid  Code = "object.codec.invalid"

	CodeModelInvalidDimensions Code = "model.register.invalid_dimensions"
	CodeModelNameInvalid       Code = "model.register.invalid"
	CodeModelDimensionsInUse   Code = "model.register.conflict"
	CodeModelNotFound          Code = "model.get.not_found"
	CodeModelDimMismatch       Code = "model.validate.dimension_mismatch"
	CodeModelIOFailure         Code = "model.io.failure"

	CodeLedgerNotTracked  Code = "ledger.source.not_tracked"
	CodeLedgerIOFailure   Code = "ledger.io.failure"
	CodeLedgerCorrupt     Code = "ledger.history.corrupt"
	CodeLedgerLockTimeout Code = "ledger.lock.failure"

	CodeCompareDimMismatch   Code = "compare.input.dimension_mismatch"
	CodeCompareInvalidValues Code = "compare.input.invalid_values"
	CodeCompareInvalidInput  Code = "compare.input.invalid"

	CodeSetNotFound    Code = "set.get.not_found"
	CodeSetExists      Code = "set.create.exists"
	CodeSetNameInvalid Code = "set.name.invalid"
	CodeSetActive      Code = "set.delete.active"
	CodeSetNotEmpty    Code = "set.delete.conflict"
	CodeSetIOFailure   Code = "set.io.failure"

	CodeConfigReadFailure  Code = "config.load.failure"
	CodeConfigInvalidValue Code = "config.validate.invalid"
	CodeConfigWriteFailure Code = "config.save.failure"
	CodeConfigKeyNotFound  Code = "config.key.not_found"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldHash(value string) Attr {
	return Field("hash", value)
}

func FieldSource(value string) Attr {
	return Field("source", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldSet(value string) Attr {
	return Field("set", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the innermost code in err's chain, or "" when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}
	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}
	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	r := reason(CodeOf(err))
	return r == "not_found" || r == "not_tracked"
}

func IsNotTracked(err error) bool {
	return reason(CodeOf(err)) == "not_tracked"
}

func IsAmbiguous(err error) bool {
	return reason(CodeOf(err)) == "ambiguous"
}

func IsDimensionMismatch(err error) bool {
	return reason(CodeOf(err)) == "dimension_mismatch"
}

// IsInvalidValues reports data-integrity failures: NaN/Inf input or a stored
// object whose content no longer matches its hash.
func IsInvalidValues(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid_values" || r == "corrupt"
}

func IsValidation(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "too_short" || r == "invalid_dimensions"
}

func IsRepositoryState(err error) bool {
	r := reason(CodeOf(err))
	return r == "not_repository" || r == "outside" || r == "unresolvable"
}

func IsConflict(err error) bool {
	r := reason(CodeOf(err))
	return r == "conflict" || r == "exists" || r == "active"
}

func IsIO(err error) bool {
	return reason(CodeOf(err)) == "failure"
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeRepoIOFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
