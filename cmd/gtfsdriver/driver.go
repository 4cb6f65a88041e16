// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* soak/demo harness for gtfs, descended from the slookup_i test driver's
   bring_up/bring_down shape: stand up an instance against a scratch
   directory, exercise write/sync/abort/read, tear it down, and bring up
   a second instance against the same directory to prove recovery and
   cross-process visibility (section 8 scenario 1). */

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/nixomose/gtfs/gtfs_lib/gtfs_src"
	"github.com/nixomose/nixomosegotools/tools"
)

func bring_up(log *tools.Nixomosetools_logger, directory string) (tools.Ret, *gtfs_src.Instance) {
	var inst = gtfs_src.New_instance(log)
	var ret = inst.Init(directory)
	if ret != nil {
		return ret, nil
	}
	return nil, inst
}

func bring_down(inst *gtfs_src.Instance) tools.Ret {
	return inst.Clean()
}

func test_write_then_read_across_processes(log *tools.Nixomosetools_logger, directory string) tools.Ret {

	var ret, a = bring_up(log, directory)
	if ret != nil {
		return ret
	}

	var of *gtfs_src.Open_file
	if ret, of = a.Open_file("t1", 100); ret != nil {
		return ret
	}

	var msg = []byte("Hi, I'm the writer.\n")
	var pw *gtfs_src.Pending_write
	if ret, pw = a.Write(of, 10, msg); ret != nil {
		return ret
	}
	if ret, _ = a.Sync(pw); ret != nil {
		return ret
	}
	if ret = a.Close_file(of); ret != nil {
		return ret
	}
	if ret = bring_down(a); ret != nil {
		return ret
	}

	var b *gtfs_src.Instance
	if ret, b = bring_up(log, directory); ret != nil {
		return ret
	}
	if ret, of = b.Open_file("t1", 100); ret != nil {
		return ret
	}
	var read *[]byte
	if ret, read = b.Read(of, 10, uint32(len(msg))); ret != nil {
		return ret
	}
	if !bytes.Equal(*read, msg) {
		return tools.Error(log, "cross process read mismatch, got: ", string(*read))
	}
	if ret = b.Close_file(of); ret != nil {
		return ret
	}
	return bring_down(b)
}

func test_abort_restores_original_content(log *tools.Nixomosetools_logger, directory string) tools.Ret {

	var ret, inst = bring_up(log, directory)
	if ret != nil {
		return ret
	}
	defer bring_down(inst)

	var of *gtfs_src.Open_file
	if ret, of = inst.Open_file("t2", 100); ret != nil {
		return ret
	}

	var first = []byte("Testing string.\n")
	var pw *gtfs_src.Pending_write
	if ret, pw = inst.Write(of, 0, first); ret != nil {
		return ret
	}
	if ret, _ = inst.Sync(pw); ret != nil {
		return ret
	}

	var second = []byte("Testing string.\n")
	if ret, pw = inst.Write(of, 20, second); ret != nil {
		return ret
	}
	if ret = inst.Abort(pw); ret != nil {
		return ret
	}

	var read *[]byte
	if ret, read = inst.Read(of, 0, uint32(len(first))); ret != nil {
		return ret
	}
	if !bytes.Equal(*read, first) {
		return tools.Error(log, "expected synced write to survive abort of a different write, got: ", string(*read))
	}

	if ret, read = inst.Read(of, 20, uint32(len(second))); ret != nil {
		return ret
	}
	for _, b := range *read {
		if b != 0 {
			return tools.Error(log, "expected aborted range to remain zero-filled")
		}
	}
	return nil
}

func test_partial_sync(log *tools.Nixomosetools_logger, directory string) tools.Ret {

	var ret, inst = bring_up(log, directory)
	if ret != nil {
		return ret
	}
	defer bring_down(inst)

	var of *gtfs_src.Open_file
	if ret, of = inst.Open_file("t4", 100); ret != nil {
		return ret
	}

	var data = []byte("Testing 5 string.\n")
	var pw *gtfs_src.Pending_write
	if ret, pw = inst.Write(of, 0, data); ret != nil {
		return ret
	}
	if ret, _ = inst.Sync_n_bytes(pw, 5); ret != nil {
		return ret
	}

	var read *[]byte
	if ret, read = inst.Read(of, 0, 5); ret != nil {
		return ret
	}
	if string(*read) != "Testi" {
		return tools.Error(log, "partial sync mismatch, got: ", string(*read))
	}
	return nil
}

func main() {

	var log = tools.New_Nixomosetools_logger(tools.DEBUG)

	var directory = "/tmp/gtfsdriver_demo"
	os.RemoveAll(directory)

	if ret := test_write_then_read_across_processes(log, directory); ret != nil {
		fmt.Println("write-then-read scenario failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret := test_abort_restores_original_content(log, directory); ret != nil {
		fmt.Println("abort scenario failed: ", ret.Get_errmsg())
		os.Exit(1)
	}
	if ret := test_partial_sync(log, directory); ret != nil {
		fmt.Println("partial sync scenario failed: ", ret.Get_errmsg())
		os.Exit(1)
	}

	fmt.Println("gtfs soak scenarios passed")
}
