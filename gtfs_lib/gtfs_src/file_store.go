// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the flat fixed-length data files (section 4.3). same operation set as
   slookup_i's Memory_store (Load_block_data/Store_block_data/Discard_block)
   but against real files on disk instead of an in-memory map, since gtfs
   files are not uniformly-sized 4k blocks, they're whole declared-length
   byte arrays addressed by arbitrary offset. */

package gtfs_src

import (
	"io"
	"os"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

const MAX_FILENAME_LEN int = 255
const MAX_NUM_FILES_PER_DIR int = 1024

type File_store struct {
	log       *tools.Nixomosetools_logger
	directory string
}

// Exists is not part of File_store_interface (the interface only exposes
// what recovery and the transaction manager need generically); it's used
// directly on the concrete File_store by Instance.open_file_internal and
// by the recovery engine's replay_one.
var _ gtfs_lib.File_store_interface = &File_store{}
var _ gtfs_lib.File_store_interface = (*File_store)(nil)

func New_file_store(l *tools.Nixomosetools_logger, directory string) *File_store {
	var fs File_store
	fs.log = l
	fs.directory = directory
	return &fs
}

func (this *File_store) path(name string) string {
	return this.directory + "/" + name
}

// Exists reports whether name is currently a regular file in the
// directory, used by open_file to decide whether the per-directory file
// cap applies (it doesn't when re-opening a file that's already there).
func (this *File_store) Exists(name string) bool {
	var _, err = os.Stat(this.path(name))
	return err == nil
}

// Create_or_extend creates name zero-filled to length if absent, extends
// it with zero bytes if it's shorter than length, and fails if it's
// already longer, same three-way branch as the original's gtfs_open_file.
func (this *File_store) Create_or_extend(name string, length uint32) tools.Ret {

	var info, staterr = os.Stat(this.path(name))
	if staterr != nil {
		if !os.IsNotExist(staterr) {
			return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to stat ", name, ": ", staterr)
		}
		return this.create_zero_filled(name, length)
	}

	var existing_length = uint32(info.Size())
	if existing_length > length {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_shrink_not_allowed,
			"existing file ", name, " length ", existing_length, " is larger than requested length ", length)
	}
	if existing_length == length {
		return nil
	}
	return this.extend_zero_filled(name, length-existing_length)
}

func (this *File_store) create_zero_filled(name string, length uint32) tools.Ret {
	var f, err = os.OpenFile(this.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to create ", name, ": ", err)
	}
	defer f.Close()
	if length == 0 {
		return nil
	}
	if err = f.Truncate(int64(length)); err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to zero-fill ", name, " to ", length, " bytes: ", err)
	}
	return nil
}

func (this *File_store) extend_zero_filled(name string, extend_by uint32) tools.Ret {
	var f, err = os.OpenFile(this.path(name), os.O_RDWR, 0666)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open ", name, " to extend: ", err)
	}
	defer f.Close()
	var info, staterr = f.Stat()
	if staterr != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to stat ", name, " to extend: ", staterr)
	}
	if err = f.Truncate(info.Size() + int64(extend_by)); err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to extend ", name, " by ", extend_by, " bytes: ", err)
	}
	return nil
}

func (this *File_store) Read_range(name string, offset uint32, length uint32) (tools.Ret, *[]byte) {
	var f, err = os.Open(this.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return gtfs_lib.New_error(this.log, gtfs_lib.Err_not_found, "file not found: ", name), nil
		}
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open ", name, " for reading: ", err), nil
	}
	defer f.Close()

	var buf = make([]byte, length)
	var n, readerr = f.ReadAt(buf, int64(offset))
	if readerr != nil && readerr != io.EOF {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to read ", name, " at offset ", offset, ": ", readerr), nil
	}
	if uint32(n) != length {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error,
			"short read on ", name, ": wanted ", length, " bytes, got ", n), nil
	}
	return nil, &buf
}

func (this *File_store) Write_range(name string, offset uint32, data *[]byte) tools.Ret {
	var f, err = os.OpenFile(this.path(name), os.O_RDWR, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return gtfs_lib.New_error(this.log, gtfs_lib.Err_not_found, "file not found: ", name)
		}
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open ", name, " for writing: ", err)
	}
	defer f.Close()

	var _, writeerr = f.WriteAt(*data, int64(offset))
	if writeerr != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to write ", name, " at offset ", offset, ": ", writeerr)
	}
	return nil
}

func (this *File_store) Remove(name string) tools.Ret {
	var err = os.Remove(this.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return gtfs_lib.New_error(this.log, gtfs_lib.Err_not_found, "file not found: ", name)
		}
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to remove ", name, ": ", err)
	}
	return nil
}

// Enumerate_data_files counts directory entries excluding ".", "..", the
// log file, and the instance lock sentinel file. os.ReadDir never
// returns "." or ".." itself; the lock file exclusion has no equivalent
// in the original (it has no sentinel lock file), it's excluded here for
// the same reason the log file is: it's gtfs's own bookkeeping, not a
// client data file.
func (this *File_store) Enumerate_data_files() (tools.Ret, uint32) {
	var entries, err = os.ReadDir(this.directory)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to read directory ", this.directory, ": ", err), 0
	}
	var count uint32
	for _, e := range entries {
		if e.Name() == LOG_FILE_NAME || e.Name() == LOCK_FILE_NAME {
			continue
		}
		count++
	}
	return nil, count
}
