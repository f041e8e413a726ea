//go:build android || ios

package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"unsafe"
)

// Init initializes the sync core from the config file at configPath.
// Returns 0 on success and -1 on failure; see GetLastError.
//
//export Init
func Init(configPath *C.char) C.int {
	if err := core.setup(context.Background(), C.GoString(configPath)); err != nil {
		return -1
	}
	return 0
}

// EnqueuePublish queues a publish and runs a pass.
// payload is base64-encoded. Returns a JSON result that must be freed with FreeString.
//
//export EnqueuePublish
func EnqueuePublish(contentID, visibility, payload *C.char) *C.char {
	return C.CString(core.enqueuePublish(context.Background(),
		C.GoString(contentID), C.GoString(visibility), C.GoString(payload)))
}

// EnqueueUnpublish queues an unpublish and runs a pass.
// Returns a JSON result that must be freed with FreeString.
//
//export EnqueueUnpublish
func EnqueueUnpublish(contentID, publicID *C.char) *C.char {
	return C.CString(core.enqueueUnpublish(context.Background(),
		C.GoString(contentID), C.GoString(publicID)))
}

// SyncPending runs one pass over the queue.
// Returns a JSON result that must be freed with FreeString.
//
//export SyncPending
func SyncPending() *C.char {
	return C.CString(core.syncPending(context.Background()))
}

// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
//
//export GetLastError
func GetLastError() *C.char {
	return C.CString(core.lastError())
}

// Cleanup closes the database and releases the service.
//
//export Cleanup
func Cleanup() {
	core.cleanup()
}

// FreeString frees a string allocated by Go.
//
//export FreeString
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
