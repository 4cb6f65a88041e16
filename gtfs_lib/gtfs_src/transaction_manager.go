// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the transaction manager: section 4.4's public operations. every durable
   operation (write, sync, abort, remove_file) follows the same shape as
   the original's gtfs_write_file/gtfs_sync_write_file/gtfs_abort_write_file/
   gtfs_remove_file: build a log_record, append it, flush it, then apply
   the effect. the only thing that changed from the original is what
   "apply the effect" means for abort (targeted removal only, not the
   whole pending_writes vector, see section 9's open question) and for
   sync_n_bytes (a real partial S record instead of a silent full sync). */

package gtfs_src

import (
	"strings"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	gtfs_lib_record "github.com/nixomose/gtfs/gtfs_lib/gtfs_record"
	"github.com/nixomose/nixomosegotools/tools"
)

// Open_file creates (or re-extends) the named data file and adds it to
// the open-files table. Section 4.4.
func (this *Instance) Open_file(name string, length uint32) (tools.Ret, *Open_file) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.open_file_internal(name, length)
}

func (this *Instance) open_file_internal(name string, length uint32) (tools.Ret, *Open_file) {
	if len(name) == 0 || len(name) > MAX_FILENAME_LEN {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_invalid_argument,
			"filename length ", len(name), " is not between 1 and ", MAX_FILENAME_LEN), nil
	}
	if strings.ContainsAny(name, " /") {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_invalid_argument,
			"filename ", name, " must not contain spaces or path separators"), nil
	}
	if _, exists := this.m_open_files[name]; exists {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_already_open, "file ", name, " is already open"), nil
	}

	var file_is_new = !this.m_file_store.Exists(name)
	if file_is_new {
		var ret, count = this.m_file_store.Enumerate_data_files()
		if ret != nil {
			return ret, nil
		}
		if count >= uint32(MAX_NUM_FILES_PER_DIR) {
			return gtfs_lib.New_error(this.log, gtfs_lib.Err_capacity_exceeded,
				"directory already has ", count, " files, cap is ", MAX_NUM_FILES_PER_DIR), nil
		}
	}

	if ret := this.m_file_store.Create_or_extend(name, length); ret != nil {
		return ret, nil
	}

	var of = new_open_file(name, length)
	this.m_open_files[name] = of
	return nil, of
}

// Close_file removes of from the open-files table. Fails with
// PendingWrites if of still has staged, unsynced writes.
func (this *Instance) Close_file(of *Open_file) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if len(of.Pending_writes) > 0 {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_pending_writes,
			"cannot close ", of.Name, " with ", len(of.Pending_writes), " pending writes")
	}
	delete(this.m_open_files, of.Name)
	return nil
}

// Remove_file logs an R record, flushes, then deletes the on-disk data
// file. Only legal once the caller has already closed the file.
func (this *Instance) Remove_file(name string) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.remove_file_internal(name)
}

func (this *Instance) remove_file_internal(name string) tools.Ret {
	if _, still_open := this.m_open_files[name]; still_open {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_already_open, "cannot remove ", name, " while it is open")
	}

	if this.m_mode == MODE_NORMAL {
		var write_id = this.m_next_write_id
		this.m_next_write_id++
		if ret := this.append_and_flush(gtfs_lib_record.Action_remove, write_id, name, 0, nil); ret != nil {
			return ret
		}
	}

	var ret = this.m_file_store.Remove(name)
	if ret != nil {
		if gtfs_lib.Kind_of(ret) == gtfs_lib.Err_not_found && this.m_mode == MODE_RECOVERY {
			// idempotent: a recovered R record whose file is already gone
			// (e.g. the process died again mid clean-up) is not an error.
			return nil
		}
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "remove_file ", name, ": ", ret.Get_errmsg())
	}
	return nil
}

// Write stages length bytes at offset, logs a W record, and returns the
// pending-write handle. Section 4.4.
func (this *Instance) Write(of *Open_file, offset uint32, data []byte) (tools.Ret, *Pending_write) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	var length = uint32(len(data))
	if ret := check_bounds(this.log, of, offset, length); ret != nil {
		return ret, nil
	}

	var write_id = this.m_next_write_id
	this.m_next_write_id++

	var owned_data = make([]byte, length)
	copy(owned_data, data)

	if ret := this.append_and_flush(gtfs_lib_record.Action_write, write_id, of.Name, offset, owned_data); ret != nil {
		return ret, nil
	}

	var pw = new_pending_write(of, write_id, offset, owned_data)
	of.Pending_writes = append(of.Pending_writes, pw)
	return nil, pw
}

// Sync commits pw's bytes to the data file and retires it. Section 4.4.
func (this *Instance) Sync(pw *Pending_write) (tools.Ret, uint32) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.sync_internal(pw, pw.Length)
}

// Sync_n_bytes commits only the first n bytes of pw, without retiring it.
// n must be 0 <= n <= pw.Length.
func (this *Instance) Sync_n_bytes(pw *Pending_write, n uint32) (tools.Ret, uint32) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if n > pw.Length {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_invalid_argument,
			"sync_n_bytes: n ", n, " exceeds pending write length ", pw.Length), 0
	}
	var prefix = make([]byte, n)
	copy(prefix, pw.Data[:n])

	if this.m_mode == MODE_NORMAL {
		if ret := this.append_and_flush(gtfs_lib_record.Action_sync, pw.Write_id, pw.Owner.Name, pw.Offset, prefix); ret != nil {
			return ret, 0
		}
	}

	if ret := this.m_file_store.Write_range(pw.Owner.Name, pw.Offset, &prefix); ret != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "sync_n_bytes: ", ret.Get_errmsg()), 0
	}
	// partial sync never retires the pending write: further full or
	// partial syncs against it remain legal.
	return nil, n
}

func (this *Instance) sync_internal(pw *Pending_write, n uint32) (tools.Ret, uint32) {
	if this.m_mode == MODE_NORMAL {
		if ret := this.append_and_flush(gtfs_lib_record.Action_sync, pw.Write_id, pw.Owner.Name, pw.Offset, pw.Data); ret != nil {
			return ret, 0
		}
	}

	if ret := this.m_file_store.Write_range(pw.Owner.Name, pw.Offset, &pw.Data); ret != nil {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "sync: ", ret.Get_errmsg()), 0
	}

	pw.Owner.remove_pending_write(pw.Write_id)
	return nil, n
}

// Abort discards pw without committing it, restoring whatever was on
// disk (or still pending underneath it) before the write. Only the
// targeted write is removed, see section 9's open question.
func (this *Instance) Abort(pw *Pending_write) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.abort_internal(pw)
}

func (this *Instance) abort_internal(pw *Pending_write) tools.Ret {
	if this.m_mode == MODE_NORMAL {
		if ret := this.append_and_flush(gtfs_lib_record.Action_abort, pw.Write_id, pw.Owner.Name, pw.Offset, pw.Data); ret != nil {
			return ret
		}
	}
	pw.Owner.remove_pending_write(pw.Write_id)
	return nil
}

// Read returns length bytes at offset, with every pending write on of
// overlaid in insertion order (later writes win on overlap). Never
// touches the log. Section 4.4.
func (this *Instance) Read(of *Open_file, offset uint32, length uint32) (tools.Ret, *[]byte) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if ret := check_bounds(this.log, of, offset, length); ret != nil {
		return ret, nil
	}

	var ret, buf = this.m_file_store.Read_range(of.Name, offset, length)
	if ret != nil {
		return ret, nil
	}

	for _, pw := range of.Pending_writes {
		overlay_pending_write(buf, offset, length, pw)
	}
	return nil, buf
}

// overlay_pending_write copies the portion of pw.Data that falls inside
// [offset, offset+length) into buf, same overlap arithmetic as the
// original's gtfs_read_file.
func overlay_pending_write(buf *[]byte, offset uint32, length uint32, pw *Pending_write) {
	var overlap_start = max32(offset, pw.Offset)
	var overlap_end = min32(offset+length, pw.Offset+pw.Length)
	if overlap_end <= overlap_start {
		return
	}
	var copy_from_write = overlap_start - pw.Offset
	var copy_into_buf = overlap_start - offset
	var copy_length = overlap_end - overlap_start
	copy((*buf)[copy_into_buf:copy_into_buf+copy_length], pw.Data[copy_from_write:copy_from_write+copy_length])
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func check_bounds(log *tools.Nixomosetools_logger, of *Open_file, offset uint32, length uint32) tools.Ret {
	if length == 0 {
		return gtfs_lib.New_error(log, gtfs_lib.Err_invalid_argument, "length must be greater than zero")
	}
	if uint64(offset)+uint64(length) > uint64(of.Declared_length) {
		return gtfs_lib.New_error(log, gtfs_lib.Err_invalid_argument,
			"offset ", offset, " + length ", length, " exceeds declared length ", of.Declared_length, " for ", of.Name)
	}
	return nil
}

// append_and_flush is the log-then-mutate half of every durable
// operation: it's skipped for the mutate side, callers do that
// themselves, but the log write and its flush are identical across
// write/sync/abort/remove so they live here once.
func (this *Instance) append_and_flush(action byte, write_id uint64, filename string, offset uint32, data []byte) tools.Ret {
	var rec = gtfs_lib_record.Log_record{
		Action:   action,
		Write_id: write_id,
		Filename: filename,
		Offset:   offset,
		Length:   uint32(len(data)),
		Data:     data,
	}
	var encoded = rec.Encode()
	if ret := this.m_log_file.Append(encoded); ret != nil {
		return ret
	}
	return this.m_log_file.Flush()
}
