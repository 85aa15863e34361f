// Copyright 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"errors"
	"fmt"
)

const (
	// 0 - 99 is OK. They do not carry info and are handled with static
	// instances, no alloc.
	Ok            uint16 = 0
	OkExpectedEOF uint16 = 2 // Expected End Of File
	OkExpectedEOB uint16 = 3 // Expected End of Batch
	OkMax         uint16 = 99

	// Group 1: internal errors
	ErrInternal     uint16 = 20101
	ErrNYI          uint16 = 20102
	ErrOOM          uint16 = 20103
	ErrNotSupported uint16 = 20105

	// Group 3: invalid input
	ErrInvalidInput uint16 = 20301

	// Group 4: unexpected state and io errors
	ErrInvalidState   uint16 = 20400
	ErrFileNotFound   uint16 = 20405
	ErrUnexpectedEOF  uint16 = 20407
	ErrEmptyRange     uint16 = 20408
	ErrSizeNotMatch   uint16 = 20409
	ErrInvalidPath    uint16 = 20411
	ErrDataCorrupted  uint16 = 20416
	ErrBadChecksum    uint16 = 20417
	ErrInvalidExtent  uint16 = 20418
	ErrBadMagicNumber uint16 = 20419
)

type moErrorMsgItem struct {
	errorCode uint16
	format    string
}

var errorMsgRegistry = map[uint16]moErrorMsgItem{
	Ok:            {Ok, "ok"},
	OkExpectedEOF: {OkExpectedEOF, "expected eof"},
	OkExpectedEOB: {OkExpectedEOB, "expected end of batch"},

	ErrInternal:     {ErrInternal, "internal error: %s"},
	ErrNYI:          {ErrNYI, "%s is not yet implemented"},
	ErrOOM:          {ErrOOM, "out of memory"},
	ErrNotSupported: {ErrNotSupported, "not supported: %s"},

	ErrInvalidInput: {ErrInvalidInput, "invalid input: %s"},

	ErrInvalidState:   {ErrInvalidState, "invalid state %s"},
	ErrFileNotFound:   {ErrFileNotFound, "file %s is not found"},
	ErrUnexpectedEOF:  {ErrUnexpectedEOF, "unexpected end of file %s"},
	ErrEmptyRange:     {ErrEmptyRange, "empty range of file %s"},
	ErrSizeNotMatch:   {ErrSizeNotMatch, "file %s size does not match"},
	ErrInvalidPath:    {ErrInvalidPath, "invalid file path %s"},
	ErrDataCorrupted:  {ErrDataCorrupted, "file %s: corrupted data: %s"},
	ErrBadChecksum:    {ErrBadChecksum, "file %s: checksum mismatch"},
	ErrInvalidExtent:  {ErrInvalidExtent, "file %s: invalid extent [%d, %d)"},
	ErrBadMagicNumber: {ErrBadMagicNumber, "file %s: bad magic number"},
}

// Error is the only error type the library surfaces. The code drives the
// caller-visible taxonomy: corruption, unsupported feature, io, oom.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Succeeded() bool {
	return e.code <= OkMax
}

var errOOM = &Error{ErrOOM, "out of memory"}
var errExpectedEOF = &Error{OkExpectedEOF, "expected eof"}
var errExpectedEOB = &Error{OkExpectedEOB, "expected end of batch"}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	_ = ctx
	item, has := errorMsgRegistry[code]
	if !has {
		return &Error{ErrInternal, fmt.Sprintf("unknown error code %d", code)}
	}
	if len(args) == 0 {
		return &Error{code, item.format}
	}
	return &Error{code, fmt.Sprintf(item.format, args...)}
}

// GetOkExpectedEOF is not an error, it is used to break out of iteration.
func GetOkExpectedEOF() *Error {
	return errExpectedEOF
}

// GetOkExpectedEOB breaks out of a batch scan.
func GetOkExpectedEOB() *Error {
	return errExpectedEOB
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInternal, fmt.Sprintf(msg, args...))
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNYI, fmt.Sprintf(msg, args...))
}

func NewOOM(ctx context.Context) *Error {
	_ = ctx
	return errOOM
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNotSupported, fmt.Sprintf(msg, args...))
}

func NewNotSupportedNoCtx(msg string, args ...any) *Error {
	return NewNotSupported(Context(), msg, args...)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidInput, fmt.Sprintf(msg, args...))
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(Context(), msg, args...)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidState, fmt.Sprintf(msg, args...))
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewFileNotFound(ctx context.Context, f string) *Error {
	return newError(ctx, ErrFileNotFound, f)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewEmptyRange(ctx context.Context, f string) *Error {
	return newError(ctx, ErrEmptyRange, f)
}

func NewSizeNotMatch(ctx context.Context, f string) *Error {
	return newError(ctx, ErrSizeNotMatch, f)
}

func NewInvalidPath(ctx context.Context, f string) *Error {
	return newError(ctx, ErrInvalidPath, f)
}

// NewDataCorrupted reports unrecoverable layout or encoding damage. It always
// aborts the current file read and is never retried by the library.
func NewDataCorrupted(ctx context.Context, f string, msg string, args ...any) *Error {
	return newError(ctx, ErrDataCorrupted, f, fmt.Sprintf(msg, args...))
}

func NewDataCorruptedNoCtx(f string, msg string, args ...any) *Error {
	return NewDataCorrupted(Context(), f, msg, args...)
}

func NewBadChecksumNoCtx(f string) *Error {
	return NewBadChecksum(Context(), f)
}

func NewBadChecksum(ctx context.Context, f string) *Error {
	return newError(ctx, ErrBadChecksum, f)
}

func NewInvalidExtent(ctx context.Context, f string, offset, end int64) *Error {
	return newError(ctx, ErrInvalidExtent, f, offset, end)
}

func NewBadMagicNumber(ctx context.Context, f string) *Error {
	return newError(ctx, ErrBadMagicNumber, f)
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}
	var me *Error
	if !errors.As(e, &me) {
		return false
	}
	return me.code == rc
}

func IsDataCorrupted(e error) bool {
	return IsMoErrCode(e, ErrDataCorrupted) ||
		IsMoErrCode(e, ErrBadChecksum) ||
		IsMoErrCode(e, ErrInvalidExtent) ||
		IsMoErrCode(e, ErrBadMagicNumber)
}

func IsNotSupported(e error) bool {
	return IsMoErrCode(e, ErrNotSupported) || IsMoErrCode(e, ErrNYI)
}

// Context returns the background context used by the NoCtx constructors.
func Context() context.Context {
	return context.Background()
}
