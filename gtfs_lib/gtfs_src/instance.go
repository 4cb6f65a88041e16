// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* Package gtfs_src implements the transaction log: start a transaction
   (write), either commit it (sync) or throw it away (abort), and on
   startup replay whatever was durably logged since the last clean
   shutdown so the data files end up consistent no matter when the
   process died.

   Instance binds together everything a mounted directory needs: the
   open-files table, the log file handle, the monotonic write-id counter,
   and the mode flag that tells Sync/Sync_n_bytes/Abort/Remove_file whether
   they're running for a live caller (NORMAL, log everything) or for the
   recovery engine replaying history (RECOVERY, apply effects but don't
   re-log them). */

// package name matches the directory name, unlike gtfs_lib_record.
package gtfs_src

import (
	"os"
	"sync"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sys/unix"
)

const LOCK_FILE_NAME string = ".gtfs_lock"

type Mode int

const (
	MODE_NORMAL Mode = iota
	MODE_RECOVERY
)

type Instance struct {
	log *tools.Nixomosetools_logger

	m_directory     string
	m_open_files    map[string]*Open_file
	m_log_file      *Log_file
	m_file_store    *File_store
	m_next_write_id uint64
	m_mode          Mode

	m_lock_file *os.File

	/* 12/26/2020 only one of anything in the interface can happen at once,
	   so here's the lock for it. */
	interface_lock sync.Mutex
}

func New_instance(l *tools.Nixomosetools_logger) *Instance {
	var i Instance
	i.log = l
	return &i
}

// Init mounts directory: acquires the advisory instance lock, recovers
// from any log left behind by a prior unclean shutdown, and leaves the
// instance ready to accept open_file/write/sync/abort/read calls.
func (this *Instance) Init(directory string) tools.Ret {

	this.m_directory = directory
	this.m_open_files = make(map[string]*Open_file)
	this.m_next_write_id = 1
	this.m_mode = MODE_NORMAL

	if err := os.MkdirAll(directory, 0777); err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to create directory ", directory, ": ", err)
	}

	if ret := this.acquire_lock(); ret != nil {
		return ret
	}

	this.m_file_store = New_file_store(this.log, directory)
	this.m_log_file = New_log_file(this.log, directory)

	if ret := this.recover(); ret != nil {
		this.release_lock()
		return ret
	}

	if ret := this.m_log_file.Open(); ret != nil {
		this.release_lock()
		return ret
	}

	this.m_mode = MODE_NORMAL
	this.log.Info("gtfs instance initialized in ", directory)
	return nil
}

// Clean tears down the instance: discards any still-pending writes,
// truncates the log to zero (I5), and releases the instance lock. After
// Clean returns the instance must not be used again.
func (this *Instance) Clean() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	for _, of := range this.m_open_files {
		of.Pending_writes = nil
	}

	var ret, size = this.m_log_file.Size()
	if ret != nil {
		return ret
	}
	if size > 0 {
		if ret = this.m_log_file.Truncate_tail(size); ret != nil {
			return ret
		}
	}
	if ret = this.m_log_file.Close(); ret != nil {
		return ret
	}

	this.m_open_files = make(map[string]*Open_file)
	this.release_lock()
	return nil
}

// Clean_n_bytes truncates exactly n bytes off the tail of the log,
// leaving pending-write state and open files untouched.
func (this *Instance) Clean_n_bytes(n uint64) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.m_log_file.Truncate_tail(n)
}

func (this *Instance) acquire_lock() tools.Ret {
	var path = this.m_directory + "/" + LOCK_FILE_NAME
	var f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to open lock file ", path, ": ", err)
	}
	if err = unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to lock ", path, ": ", err)
	}
	this.m_lock_file = f
	return nil
}

func (this *Instance) release_lock() {
	if this.m_lock_file == nil {
		return
	}
	unix.Flock(int(this.m_lock_file.Fd()), unix.LOCK_UN)
	this.m_lock_file.Close()
	this.m_lock_file = nil
}
