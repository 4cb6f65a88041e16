// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package gtfs_src

/* Open_file and Pending_write are pure data, section 3's "open file" and
   "pending write". Pending_write back-references its owner (non-owning,
   same as the design note in section 9 suggests) so abort/sync can find
   and splice it out of owner.pending_writes without the owner having to
   search by write_id through every caller. */

type Open_file struct {
	Name            string
	Declared_length uint32
	Pending_writes  []*Pending_write
}

func new_open_file(name string, declared_length uint32) *Open_file {
	var of Open_file
	of.Name = name
	of.Declared_length = declared_length
	of.Pending_writes = nil
	return &of
}

// remove_pending_write splices out the pending write with the given
// write_id, if present. returns true if one was found and removed.
func (this *Open_file) remove_pending_write(write_id uint64) bool {
	for i, pw := range this.Pending_writes {
		if pw.Write_id == write_id {
			this.Pending_writes = append(this.Pending_writes[:i], this.Pending_writes[i+1:]...)
			return true
		}
	}
	return false
}

func (this *Open_file) find_pending_write(write_id uint64) *Pending_write {
	for _, pw := range this.Pending_writes {
		if pw.Write_id == write_id {
			return pw
		}
	}
	return nil
}

type Pending_write struct {
	Owner    *Open_file
	Write_id uint64
	Offset   uint32
	Length   uint32
	Data     []byte
}

func new_pending_write(owner *Open_file, write_id uint64, offset uint32, data []byte) *Pending_write {
	var pw Pending_write
	pw.Owner = owner
	pw.Write_id = write_id
	pw.Offset = offset
	pw.Length = uint32(len(data))
	pw.Data = data
	return &pw
}
