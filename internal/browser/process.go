package browser

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// snapshotProcessTree returns the set of pids currently under the current
// process's tree (its own pid plus every descendant), read from /proc.
// Browser launchers commonly double-fork, so tracking only the immediate
// child of Browser.Launch misses renderer/GPU helper processes; snapshotting
// before and after reset and diffing catches everything spawned in between.
func snapshotProcessTree() (map[int]struct{}, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	parents := make(map[int]int, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ppid, ok := readPPID(pid)
		if !ok {
			continue
		}
		parents[pid] = ppid
	}

	root := os.Getpid()
	descendants := map[int]struct{}{root: {}}
	changed := true
	for changed {
		changed = false
		for pid, ppid := range parents {
			if _, isDescendant := descendants[pid]; isDescendant {
				continue
			}
			if _, parentKnown := descendants[ppid]; parentKnown {
				descendants[pid] = struct{}{}
				changed = true
			}
		}
	}
	return descendants, nil
}

func readPPID(pid int) (int, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	// Format: pid (comm) state ppid ...; comm may itself contain spaces and
	// parens, so split on the last ')' before parsing the remaining fields.
	s := string(data)
	idx := strings.LastIndexByte(s, ')')
	if idx < 0 || idx+2 >= len(s) {
		return 0, false
	}
	fields := strings.Fields(s[idx+2:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

// diffPids returns the pids present in after but not in before, i.e. the
// processes spawned during the window between the two snapshots.
func diffPids(before, after map[int]struct{}) []int {
	var spawned []int
	for pid := range after {
		if _, existed := before[pid]; !existed {
			spawned = append(spawned, pid)
		}
	}
	return spawned
}

// killProcessTree sends SIGTERM to every pid, waits up to grace for them to
// exit, then sends SIGKILL to survivors. It returns the pids that were
// successfully signaled and the count still alive after the grace window.
func killProcessTree(pids []int, grace time.Duration) (killed []int, orphaned int) {
	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGTERM); err == nil {
			killed = append(killed, pid)
		}
	}
	if len(killed) == 0 {
		return killed, 0
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !anyAlive(killed) {
			return killed, 0
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, pid := range killed {
		if processAlive(pid) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
			orphaned++
		}
	}
	return killed, orphaned
}

func anyAlive(pids []int) bool {
	for _, pid := range pids {
		if processAlive(pid) {
			return true
		}
	}
	return false
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
