// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the recovery engine, section 4.5. grounded on the original's
   recover_from_log: stream the log from the beginning, rebuild pending
   writes per file, and replay S/A/R against the data files. A and R go
   through the same abort_internal/remove_file_internal routines a live
   caller uses, just with mode held at RECOVERY so they skip re-logging;
   S goes through replay_sync, which writes the bytes the S record itself
   carries.

   unlike the original, the per-filename Open_file records recovery
   builds live in a plain map owned by this function for its duration,
   not a pointer into a loop-local stack variable that goes stale the
   moment the loop iterates again (the original's recover_from_log takes
   the address of a local file_t and stuffs it into open_files on every
   "not seen this filename yet" branch, section 9 calls this out as a
   lifetime bug). */

package gtfs_src

import (
	"bufio"
	"os"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	gtfs_lib_record "github.com/nixomose/gtfs/gtfs_lib/gtfs_record"
	"github.com/nixomose/nixomosegotools/tools"
)

func (this *Instance) recover() tools.Ret {
	this.m_mode = MODE_RECOVERY
	defer func() { this.m_mode = MODE_NORMAL }()

	var ret, reader = this.m_log_file.Read_from_start()
	if ret != nil {
		return ret
	}
	defer reader.Close()

	var recovered_files = make(map[string]*Open_file)
	var br = bufio.NewReader(reader)

	for {
		var decode_ret, rec = gtfs_lib_record.Decode_one(this.log, br)
		if decode_ret != nil {
			// end of file, or a torn final record: either way, stop
			// cleanly and discard whatever's left (section 4.5 step 2).
			break
		}
		this.replay_one(recovered_files, rec)
	}

	for _, of := range recovered_files {
		of.Pending_writes = nil
	}
	recovered_files = nil

	return this.truncate_log_to_zero()
}

func (this *Instance) replay_one(recovered_files map[string]*Open_file, rec *gtfs_lib_record.Log_record) {

	// step 3: a record naming a file that no longer exists (an earlier R
	// in the log already removed it) is moot, skip it - except R itself,
	// whose whole job is removing a (possibly already-gone) file.
	if rec.Action != gtfs_lib_record.Action_remove && !this.m_file_store.Exists(rec.Filename) {
		return
	}

	switch rec.Action {

	case gtfs_lib_record.Action_write:
		var of, ok = recovered_files[rec.Filename]
		if !ok {
			of = new_open_file(rec.Filename, 0)
			recovered_files[rec.Filename] = of
		}
		var pw = new_pending_write(of, rec.Write_id, rec.Offset, rec.Data)
		of.Pending_writes = append(of.Pending_writes, pw)
		if rec.Write_id >= this.m_next_write_id {
			this.m_next_write_id = rec.Write_id + 1
		}

	case gtfs_lib_record.Action_sync:
		var of = recovered_files[rec.Filename]
		if of == nil {
			return
		}
		var pw = of.find_pending_write(rec.Write_id)
		if pw == nil {
			return
		}
		this.replay_sync(rec, pw)

	case gtfs_lib_record.Action_abort:
		var of = recovered_files[rec.Filename]
		if of == nil {
			return
		}
		var pw = of.find_pending_write(rec.Write_id)
		if pw == nil {
			return
		}
		this.abort_internal(pw)

	case gtfs_lib_record.Action_remove:
		this.remove_file_internal(rec.Filename)
		delete(recovered_files, rec.Filename)

	default:
		this.log.Debug("recovery: skipping unknown log action: ", string(rec.Action))
	}
}

// replay_sync commits the bytes the S record itself carries (rec.Offset,
// rec.Data), not pw.Data: pw was reconstructed from the earlier W record
// and still holds the full original write, but the S record may be a
// partial sync_n_bytes (rec.Length < pw.Length). Writing pw.Data here
// would materialize bytes past what was ever durably synced before a
// crash. The pending write is only retired once a sync record covering
// its full length has been replayed, same as a live Sync/Sync_n_bytes
// call would.
func (this *Instance) replay_sync(rec *gtfs_lib_record.Log_record, pw *Pending_write) {
	if ret := this.m_file_store.Write_range(rec.Filename, rec.Offset, &rec.Data); ret != nil {
		this.log.Error("recovery: unable to replay sync for ", rec.Filename, ": ", ret.Get_errmsg())
		return
	}
	if rec.Length == pw.Length {
		pw.Owner.remove_pending_write(pw.Write_id)
	}
}

// truncate_log_to_zero is step 6's "clean()", performed before the log
// has been reopened for append, so it works directly against the path
// rather than through the not-yet-open Log_file handle.
func (this *Instance) truncate_log_to_zero() tools.Ret {
	var path = this.m_directory + "/" + LOG_FILE_NAME
	var err = os.Truncate(path, 0)
	if err != nil && !os.IsNotExist(err) {
		return gtfs_lib.New_error(this.log, gtfs_lib.Err_io_error, "unable to truncate log file during recovery cleanup: ", err)
	}
	return nil
}
