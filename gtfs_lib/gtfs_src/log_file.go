// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the append-only gtfs_log file (section 4.2). append() and flush() are
   kept as separate steps, same as the original's write_log_entry/
   flush_log_file split, because sync() needs to append an S record and
   flush it before touching the data file, and write()/abort()/remove_file
   need that same append-then-flush ordering. everyone who wants a
   durability guarantee calls Flush themselves right after Append. */

package gtfs_src

import (
	"io"
	"os"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sys/unix"
)

const LOG_FILE_NAME string = "gtfs_log"

type Log_file struct {
	log      *tools.Nixomosetools_logger
	path     string
	file     *os.File
	cur_size uint64
}

var _ gtfs_lib.Log_file_interface = &Log_file{}
var _ gtfs_lib.Log_file_interface = (*Log_file)(nil)

func New_log_file(l *tools.Nixomosetools_logger, directory string) *Log_file {
	var lf Log_file
	lf.log = l
	lf.path = directory + "/" + LOG_FILE_NAME
	return &lf
}

// Open opens (creating if absent) the log file in append mode, ready for
// Append/Flush. called once by Instance.Init after recovery has finished
// reading the pre-recovery log.
func (this *Log_file) Open() tools.Ret {
	var f, err = os.OpenFile(this.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open log file ", this.path, ": ", err)
	}
	var info, staterr = f.Stat()
	if staterr != nil {
		f.Close()
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to stat log file ", this.path, ": ", staterr)
	}
	this.file = f
	this.cur_size = uint64(info.Size())
	return nil
}

func (this *Log_file) Append(record *[]byte) tools.Ret {
	if this.file == nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "log file is not open")
	}
	var n, err = this.file.Write(*record)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to append to log file: ", err)
	}
	this.cur_size += uint64(n)
	this.log.Debug("appended ", n, " bytes to log, new size ", this.cur_size)
	return nil
}

func (this *Log_file) Flush() tools.Ret {
	if this.file == nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "log file is not open")
	}
	var err = unix.Fsync(int(this.file.Fd()))
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to fsync log file: ", err)
	}
	return nil
}

func (this *Log_file) Size() (tools.Ret, uint64) {
	return nil, this.cur_size
}

func (this *Log_file) Read_from_start() (tools.Ret, io.ReadCloser) {
	var f, err = os.Open(this.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, io.NopCloser(&empty_reader{})
		}
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open log file for reading: ", err), nil
	}
	return nil, f
}

func (this *Log_file) Truncate_tail(n uint64) tools.Ret {
	if n > this.cur_size {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_invalid_argument,
			"truncate_tail: n ", n, " exceeds log size ", this.cur_size)
	}
	var new_size = this.cur_size - n
	var err = this.file.Truncate(int64(new_size))
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to truncate log file: ", err)
	}
	var _, seekerr = this.file.Seek(int64(new_size), io.SeekStart)
	if seekerr != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to seek log file after truncate: ", seekerr)
	}
	this.cur_size = new_size
	return nil
}

func (this *Log_file) Close() tools.Ret {
	if this.file == nil {
		return nil
	}
	var err = this.file.Close()
	this.file = nil
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to close log file: ", err)
	}
	return nil
}

// empty_reader backs Read_from_start when the log file has never been
// created, so recovery's "open log, stream records" step 1 doesn't need a
// special case for "didn't exist yet".
type empty_reader struct{}

func (*empty_reader) Read(p []byte) (int, error) {
	return 0, io.EOF
}
