package main

/*
#include <stdint.h>
*/
import "C"

import (
	"os"
)

// markerPath is set with -ldflags -X. A runtime started by dlopen only sees
// the environment the process was started with, so it cannot come from an
// environment variable set by the loader.
var markerPath = "/tmp/snfix_marker.txt"

//export Java_es_chiteroman_playintegrityfix_EntryPoint_init
func Java_es_chiteroman_playintegrityfix_EntryPoint_init() {
	_ = os.WriteFile(markerPath, []byte("ok"), 0o600)
}

func main() {}
