package common

import (
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessRSSMB returns the current process resident set size in megabytes.
// Falls back to Go runtime heap stats if the OS probe fails.
func ProcessRSSMB() int {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if info, err := p.MemoryInfo(); err == nil && info != nil {
			return int(info.RSS / (1024 * 1024))
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int(ms.Sys / (1024 * 1024))
}

// AvailableMemoryMB returns the system's available memory in megabytes,
// or 0 if the probe fails (callers treat 0 as "unknown, proceed").
func AvailableMemoryMB() int {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return int(vm.Available / (1024 * 1024))
}

// CoolDown forces a GC cycle and sleeps briefly to let the allocator
// return freed pages before the next memory reading.
func CoolDown() {
	debug.FreeOSMemory()
	time.Sleep(2 * time.Second)
}
