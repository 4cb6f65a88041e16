// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// Package gtfs_lib holds the interfaces that gtfs_src's os.File based
// Log_file and File_store satisfy (checked at compile time there), plus the
// Error_kind classification. Instance itself holds the concrete Log_file and
// File_store types, not these interfaces, so it cannot be handed a fake.
package gtfs_lib

import (
	"io"

	"github.com/nixomose/nixomosegotools/tools"
)

/* tools.Ret doesn't give us a way to classify *which* of spec section 7's
   error kinds (InvalidArgument, NotFound, AlreadyOpen, ...) came back, just
   a message and a generic code. Gtfs_error wraps a tools.Ret (embedding it
   so Get_errmsg/Get_errcode/whatever else tools.Ret exposes still promote
   through untouched) and tags it with one of our own Error_kind values, so
   callers that need to branch on the kind (recovery deciding whether a
   missing data file is fine to skip, tests asserting the right failure
   came back) can, without gtfs_src having to invent its own error type
   from scratch in every package. */

type Error_kind int

const (
	Err_invalid_argument Error_kind = iota + 1
	Err_pending_writes
	Err_not_found
	Err_already_open
	Err_capacity_exceeded
	Err_shrink_not_allowed
	Err_io_error
	Err_malformed_record
)

type Gtfs_error struct {
	tools.Ret
	kind Error_kind
}

func (this *Gtfs_error) Kind() Error_kind {
	return this.kind
}

// New_error builds a tools.Ret carrying both a logged message (exactly
// like a plain tools.Error call) and a classified Error_kind.
func New_error(log *tools.Nixomosetools_logger, kind Error_kind, args ...interface{}) tools.Ret {
	return &Gtfs_error{Ret: tools.Error(log, args...), kind: kind}
}

// Kind_of returns the Error_kind a tools.Ret was tagged with, or
// Err_io_error for a ret that didn't come from New_error (e.g. one that
// bubbled straight up from an os.File call), since an untagged failure in
// this library is always some flavor of underlying I/O problem.
func Kind_of(ret tools.Ret) Error_kind {
	if ret == nil {
		return 0
	}
	if gerr, ok := ret.(*Gtfs_error); ok {
		return gerr.kind
	}
	return Err_io_error
}

// File_store_interface is the flat, fixed-length data file layer (spec
// section 4.3). It knows nothing about the log or about pending writes,
// it just manages zero-filled files of a declared length inside one
// directory.
type File_store_interface interface {

	// create_or_extend creates name if absent (zero-filled to length) or
	// extends it (zero-filled) if it already exists and is shorter than
	// length. fails with shrink-not-allowed if the file is already longer.
	Create_or_extend(name string, length uint32) tools.Ret

	Read_range(name string, offset uint32, length uint32) (tools.Ret, *[]byte)

	Write_range(name string, offset uint32, data *[]byte) tools.Ret

	Remove(name string) tools.Ret

	// Enumerate_data_files counts directory entries excluding ".", "..",
	// the log file, and the instance lock file.
	Enumerate_data_files() (tools.Ret, uint32)
}

// Log_file_interface is the append-only durable record stream (spec
// section 4.2).
type Log_file_interface interface {

	Append(record *[]byte) tools.Ret

	// Flush forces whatever Append has buffered out to the operating
	// system so a subsequent crash preserves it.
	Flush() tools.Ret

	// Size returns the current size of the log file in bytes.
	Size() (tools.Ret, uint64)

	// Read_from_start opens an independent read handle positioned at byte
	// zero of the log, for the recovery engine to decode records from. It
	// does not disturb the append position used by Append. The caller
	// closes the returned reader when done.
	Read_from_start() (tools.Ret, io.ReadCloser)

	// Truncate_tail removes the last n bytes of the log. n must not
	// exceed the current size.
	Truncate_tail(n uint64) tools.Ret

	Close() tools.Ret
}
