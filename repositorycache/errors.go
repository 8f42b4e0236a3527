package repositorycache

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to every error returned by this package.
const (
	TextCodeAlreadyInitialized = "ALREADY_INITIALIZED"
	TextCodeInvalidFilter      = "INVALID_FILTER"
	TextCodeInvalidFilterValue = "INVALID_FILTER_VALUE"
	TextCodeInvalidFilterType  = "INVALID_FILTER_TYPE"
	TextCodeInvalidRelation    = "INVALID_RELATION"
	TextCodeMissingID          = "MISSING_ID"
	TextCodeCacheDisabled      = "CACHE_DISABLED"
	TextCodeInvalidPatchFields = "INVALID_PATCH_FIELDS"
	TextCodeInvalidPagination  = "INVALID_PAGINATION"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeValidation         = "VALIDATION"
)

// AlreadyInitializedError reports a second registration for the same entity.
// It means the application wiring is wrong.
func AlreadyInitializedError(entity, what string) error {
	return goerrors.New(fmt.Sprintf("%s for %q already initialized", what, entity), goerrors.CategoryConflict).
		WithTextCode(TextCodeAlreadyInitialized).
		WithMetadata(map[string]any{"entity": entity})
}

// InvalidFilterError reports a filter that is neither {id} nor a registered index.
func InvalidFilterError(entity string, fields []string) error {
	return goerrors.New(
		fmt.Sprintf("invalid filter for %q: fields [%s] do not match a registered index", entity, strings.Join(fields, ", ")),
		goerrors.CategoryBadInput,
	).
		WithTextCode(TextCodeInvalidFilter).
		WithMetadata(map[string]any{"entity": entity, "fields": fields})
}

// InvalidFilterValueError reports a filter value that cannot address a cache slot.
func InvalidFilterValueError(entity, field string, value any) error {
	return goerrors.New(
		fmt.Sprintf("invalid filter value for %q field %q: %T", entity, field, value),
		goerrors.CategoryBadInput,
	).
		WithTextCode(TextCodeInvalidFilterValue).
		WithMetadata(map[string]any{"entity": entity, "field": field})
}

// InvalidFilterTypeError reports a filter that is not a field mapping at all.
func InvalidFilterTypeError(entity string) error {
	return goerrors.New(fmt.Sprintf("filter for %q must be a non-empty field mapping", entity), goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidFilterType)
}

func invalidRelationError(entity, message string) error {
	return goerrors.New(fmt.Sprintf("invalid relation for %q: %s", entity, message), goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidRelation)
}

func missingIDError(entity string) error {
	return goerrors.New(fmt.Sprintf("%s record has no id", entity), goerrors.CategoryBadInput).
		WithTextCode(TextCodeMissingID)
}

// CacheDisabledError reports a cached read requested for an entity whose cache is off.
func CacheDisabledError(entity string) error {
	return goerrors.New(fmt.Sprintf("cache is disabled for %q", entity), goerrors.CategoryOperation).
		WithTextCode(TextCodeCacheDisabled)
}

// InvalidPatchFieldsError reports a patch on an entity with no patchable fields configured.
func InvalidPatchFieldsError(entity string) error {
	return goerrors.New(fmt.Sprintf("no patch fields configured for %q", entity), goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidPatchFields)
}

// InvalidPaginationError reports a page or page size below 1.
func InvalidPaginationError(field string, value int) error {
	return goerrors.New(fmt.Sprintf("invalid %s: %d", field, value), goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidPagination).
		WithMetadata(map[string]any{"field": field, "value": value})
}

// NotFoundError is returned when a lookup with rejection finds nothing.
func NotFoundError(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithTextCode(TextCodeNotFound)
}

// ValidationError wraps a validation failure. ozzo-validation errors keep their field detail.
func ValidationError(message string, err error) error {
	var verr *goerrors.Error
	if goerrors.As(err, &verr) && verr.Category == goerrors.CategoryValidation {
		out := verr.Clone()
		out.Message = message
		return out.WithTextCode(TextCodeValidation)
	}
	if err == nil {
		return goerrors.NewValidation(message).WithTextCode(TextCodeValidation)
	}
	return goerrors.FromOzzoValidation(err, message).WithTextCode(TextCodeValidation)
}

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}

// IsAlreadyInitialized reports whether err is an AlreadyInitializedError.
func IsAlreadyInitialized(err error) bool { return hasTextCode(err, TextCodeAlreadyInitialized) }

// IsInvalidFilter reports whether err is an InvalidFilterError.
func IsInvalidFilter(err error) bool { return hasTextCode(err, TextCodeInvalidFilter) }

// IsInvalidFilterValue reports whether err is an InvalidFilterValueError.
func IsInvalidFilterValue(err error) bool { return hasTextCode(err, TextCodeInvalidFilterValue) }

// IsInvalidFilterType reports whether err is an InvalidFilterTypeError.
func IsInvalidFilterType(err error) bool { return hasTextCode(err, TextCodeInvalidFilterType) }

// IsCacheDisabled reports whether err is a CacheDisabledError.
func IsCacheDisabled(err error) bool { return hasTextCode(err, TextCodeCacheDisabled) }

// IsInvalidPatchFields reports whether err is an InvalidPatchFieldsError.
func IsInvalidPatchFields(err error) bool { return hasTextCode(err, TextCodeInvalidPatchFields) }

// IsInvalidPagination reports whether err is an InvalidPaginationError.
func IsInvalidPagination(err error) bool { return hasTextCode(err, TextCodeInvalidPagination) }

// IsNotFound reports whether err is in the not found category.
func IsNotFound(err error) bool { return goerrors.IsNotFound(err) }

// IsValidation reports whether err is in the validation category.
func IsValidation(err error) bool { return goerrors.IsValidation(err) }
