package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to errors returned by repositories.
const (
	TextCodeCacheRead      = "CACHE_READ_FAILED"
	TextCodeCacheWrite     = "CACHE_WRITE_FAILED"
	TextCodeRemoteFetch    = "REMOTE_FETCH_FAILED"
	TextCodeRemotePush     = "REMOTE_PUSH_FAILED"
	TextCodeLengthMismatch = "LENGTH_MISMATCH"
	TextCodePredicateType  = "PREDICATE_TYPE_MISMATCH"
)

func cacheReadError(name string, err error) error {
	if isCancellation(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, name+": cache read failed").
		WithTextCode(TextCodeCacheRead)
}

func cacheWriteError(name string, err error) error {
	if isCancellation(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, name+": cache write failed").
		WithTextCode(TextCodeCacheWrite)
}

func remoteError(name, code, opID string, err error) error {
	if isCancellation(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, name+": remote call failed").
		WithTextCode(code).
		WithRequestID(opID)
}

// lengthMismatch is never retried.
func lengthMismatch(source string, want, got int) error {
	return goerrors.NewNonRetryable(
		fmt.Sprintf("%s returned %d results for %d ids", source, got, want),
		goerrors.CategoryBadInput,
	).WithTextCode(TextCodeLengthMismatch)
}

func predicateTypeError(name string, want, got reflect.Type) error {
	return goerrors.NewNonRetryable(
		fmt.Sprintf("%s: cache predicate is for %s, repository holds %s", name, got, want),
		goerrors.CategoryBadInput,
	).WithTextCode(TextCodePredicateType)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
