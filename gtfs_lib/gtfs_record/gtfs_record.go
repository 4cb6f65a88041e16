// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the log record codec. it turns a Log_record into the bytes that
   gtfs_log holds and back again.

   the tricky bit is that the payload (the data field) can be any byte
   value at all, including spaces and newlines, because it's whatever the
   caller handed to write(). so the header is plain ascii and
   space-delimited (action, write_id, filename, offset, length) but the
   payload is never scanned for a delimiter, it is read by the length field
   that came right before it. the trailing linefeed after the payload is
   just a courtesy so the file is easy to eyeball with less/cat, the
   decoder never relies on it to find the end of a record. */

// package name differs from the directory name (gtfs_record)
package gtfs_lib_record

import (
	"bufio"
	"strconv"

	gtfs_lib "github.com/nixomose/gtfs/gtfs_lib/gtfs_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

const (
	Action_write  byte = 'W'
	Action_sync   byte = 'S'
	Action_abort  byte = 'A'
	Action_remove byte = 'R'
)

// Log_record is the in-memory form of one entry in the write-ahead log.
type Log_record struct {
	Action   byte
	Write_id uint64
	Filename string
	Offset   uint32
	Length   uint32
	Data     []byte
}

// Encode serializes this record to the wire format described in spec
// section 6: "<action> <write_id> <filename> <offset> <length> <payload><LF>"
// the separator between the length field and the payload is a single
// space, same as all the other header fields, it's just that nothing
// after it is delimiter-scanned.
func (this *Log_record) Encode() *[]byte {

	var out []byte
	out = append(out, this.Action)
	out = append(out, ' ')
	out = append(out, strconv.FormatUint(this.Write_id, 10)...)
	out = append(out, ' ')
	out = append(out, this.Filename...)
	out = append(out, ' ')
	out = append(out, strconv.FormatUint(uint64(this.Offset), 10)...)
	out = append(out, ' ')
	out = append(out, strconv.FormatUint(uint64(this.Length), 10)...)
	out = append(out, ' ')
	out = append(out, this.Data...)
	out = append(out, '\n')
	return &out
}

// Decode_one reads exactly one record from r: the five space separated
// header fields, then length raw bytes, then the trailing linefeed. it
// returns a malformed-record error (and the caller should treat that as
// end-of-log per spec section 4.5) on eof mid header, on a header it can't
// parse, or on fewer than length bytes remaining for the payload.
func Decode_one(log *tools.Nixomosetools_logger, r *bufio.Reader) (tools.Ret, *Log_record) {

	var rec Log_record

	var action_str, ret = read_token(log, r)
	if ret != nil {
		return ret, nil
	}
	if len(action_str) != 1 {
		return gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: action field is not one byte: ", action_str), nil
	}
	rec.Action = action_str[0]

	var write_id_str string
	if write_id_str, ret = read_token(log, r); ret != nil {
		return ret, nil
	}
	var write_id, err = strconv.ParseUint(write_id_str, 10, 64)
	if err != nil {
		return gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: bad write_id: ", write_id_str), nil
	}
	rec.Write_id = write_id

	if rec.Filename, ret = read_token(log, r); ret != nil {
		return ret, nil
	}

	var offset_str string
	if offset_str, ret = read_token(log, r); ret != nil {
		return ret, nil
	}
	var offset, err2 = strconv.ParseUint(offset_str, 10, 32)
	if err2 != nil {
		return gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: bad offset: ", offset_str), nil
	}
	rec.Offset = uint32(offset)

	var length_str string
	if length_str, ret = read_token(log, r); ret != nil {
		return ret, nil
	}
	var length, err3 = strconv.ParseUint(length_str, 10, 32)
	if err3 != nil {
		return gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: bad length: ", length_str), nil
	}
	rec.Length = uint32(length)

	// one separator byte between the length header field and the raw
	// payload. we already consumed the trailing space as part of
	// read_token for length, so the payload starts right here.

	var payload = make([]byte, rec.Length)
	var n, readerr = readfull(r, payload)
	if readerr != nil || uint32(n) != rec.Length {
		return gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: expected ", rec.Length, " payload bytes, got ", n), nil
	}
	rec.Data = payload

	// consume the trailing courtesy linefeed if it's there. if it's not
	// (truncated tail from a torn write) that's fine too, end of log.
	var b, peekerr = r.ReadByte()
	if peekerr == nil && b != '\n' {
		r.UnreadByte()
	}

	return nil, &rec
}

// read_token reads up to and including the next space, and returns
// everything before it. a malformed-record error comes back on eof before
// a space is seen, which recovery treats as end of log (the last record
// in the log was torn by a crash mid-append).
func read_token(log *tools.Nixomosetools_logger, r *bufio.Reader) (string, tools.Ret) {
	var tok, err = r.ReadString(' ')
	if err != nil {
		return "", gtfs_lib.New_error(log, gtfs_lib.Err_malformed_record, "malformed log record: unexpected eof reading header")
	}
	return tok[:len(tok)-1], nil
}

func readfull(r *bufio.Reader, buf []byte) (int, error) {
	var total = 0
	for total < len(buf) {
		var n, err = r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
